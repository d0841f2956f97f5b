package trailsync

import (
	"github.com/ghalamif/TrailSync/internal/adapters/remote"
	"github.com/ghalamif/TrailSync/internal/app/pipeline"
	"github.com/ghalamif/TrailSync/internal/app/session"
	"github.com/ghalamif/TrailSync/internal/domain"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// DataPoint is one fused location + motion record sent to the remote store.
type DataPoint = domain.DataPoint

// ClassifiedPoint is a DataPoint echoed back with its activity label.
type ClassifiedPoint = domain.ClassifiedPoint

// Fix is one reading from a location source.
type Fix = domain.Fix

// Acceleration is one raw accelerometer reading in m/s².
type Acceleration = domain.Acceleration

// Position is a bare coordinate pair.
type Position = domain.Position

// SessionRecord identifies the active session.
type SessionRecord = domain.SessionRecord

// SessionSummary is one row of the session history.
type SessionSummary = domain.SessionSummary

// SessionState is idle, recording or stopping.
type SessionState = domain.SessionState

// Session states.
const (
	StateIdle      = domain.StateIdle
	StateRecording = domain.StateRecording
	StateStopping  = domain.StateStopping
)

// LocationSource streams fixes (GNSS receiver, simulator, host platform).
type LocationSource = ports.LocationSource

// LocationOptions tune a position subscription.
type LocationOptions = ports.LocationOptions

// MotionSource streams accelerometer readings.
type MotionSource = ports.MotionSource

// RemoteStore owns sessions and receives synced points.
type RemoteStore = ports.RemoteStore

// Buffer holds points that have not been confirmed by the remote store.
type Buffer = ports.Buffer

// Transformer adjusts a fused point before it is buffered.
type Transformer = ports.Transformer

// Observability emits logs and metrics about the recorder.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Status is a point-in-time view of the recorder.
type Status = session.Status

// SyncState describes the last sync outcome.
type SyncState = pipeline.SyncState

// UnsyncedWarning reports points that could not be delivered before a stop.
type UnsyncedWarning = session.UnsyncedWarning

// EmitPolicy selects what triggers a fused point.
type EmitPolicy = pipeline.EmitPolicy

const (
	EmitOnFix     = pipeline.EmitOnFix
	EmitFixedRate = pipeline.EmitFixedRate
)

var (
	// ErrAlreadyActive rejects a start while a session is active.
	ErrAlreadyActive = session.ErrAlreadyActive
	// ErrNotRecording rejects a stop or sync with no active session.
	ErrNotRecording = session.ErrNotRecording
	// ErrSyncBusy means another sync attempt is already in flight.
	ErrSyncBusy = pipeline.ErrSyncBusy
	// ErrOffline means a sync was skipped because the store is unreachable.
	ErrOffline = pipeline.ErrOffline
	// ErrPermissionDenied is reported by sources that lack sensor access.
	ErrPermissionDenied = ports.ErrPermissionDenied
	// ErrSensorUnavailable is reported by sources with no usable hardware.
	ErrSensorUnavailable = ports.ErrSensorUnavailable
)

// AuthProvider supplies the bearer token and user id for the HTTP store.
type AuthProvider = ports.AuthProvider

// HTTPDoer is the part of *http.Client the HTTP store needs.
type HTTPDoer = remote.Doer

// StaticAuth is a fixed token and user id.
type StaticAuth = remote.StaticAuth

// SyncBatch is an ordered snapshot of buffered points taken for one upload.
type SyncBatch = domain.SyncBatch
