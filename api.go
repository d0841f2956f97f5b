package trailsync

import (
	base "github.com/ghalamif/TrailSync/pkg/trailsync"
)

// Re-exported errors for convenience.
var (
	ErrAlreadyActive      = base.ErrAlreadyActive
	ErrNotRecording       = base.ErrNotRecording
	ErrSyncBusy           = base.ErrSyncBusy
	ErrOffline            = base.ErrOffline
	ErrFeedIdle           = base.ErrFeedIdle
	ErrChannelStoreClosed = base.ErrChannelStoreClosed
	ErrHistoryUnavailable = base.ErrHistoryUnavailable
)

// Type aliases so consumers can import github.com/ghalamif/TrailSync directly.
type (
	Config          = base.Config
	RemoteConfig    = base.RemoteConfig
	LocationConfig  = base.LocationConfig
	MotionConfig    = base.MotionConfig
	MetricsConfig   = base.MetricsConfig
	SyncPolicy      = base.SyncPolicy
	RetryPolicy     = base.RetryPolicy
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Recorder        = base.Recorder
	RecorderOption  = base.RecorderOption
	Status          = base.Status
	StatusView      = base.StatusView
	UnsyncedWarning = base.UnsyncedWarning
	DataPoint       = base.DataPoint
	Fix             = base.Fix
	Acceleration    = base.Acceleration
	SessionRecord   = base.SessionRecord
	SessionSummary  = base.SessionSummary
	Batch           = base.Batch
	BatchHandler    = base.BatchHandler
	Feed            = base.Feed
	LocationSource  = base.LocationSource
	MotionSource    = base.MotionSource
	RemoteStore     = base.RemoteStore
	Buffer          = base.Buffer
	Transformer     = base.Transformer
	Observability   = base.Observability
	AuthProvider    = base.AuthProvider
	StaticAuth      = base.StaticAuth
	WalkConfig      = base.WalkConfig
	GaitConfig      = base.GaitConfig
	NMEAConfig      = base.NMEAConfig
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RecorderOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInLocation(src LocationSource) StreamInOption {
	return base.StreamInLocation(src)
}

func StreamInMotion(src MotionSource) StreamInOption {
	return base.StreamInMotion(src)
}

func StreamInFeed(feed *Feed) StreamInOption {
	return base.StreamInFeed(feed)
}

func StreamInConnectivity(online bool) StreamInOption {
	return base.StreamInConnectivity(online)
}

func StreamInSimulated(walk WalkConfig, gait GaitConfig) StreamInOption {
	return base.StreamInSimulated(walk, gait)
}

func StreamInNMEA(receiver NMEAConfig) StreamInOption {
	return base.StreamInNMEA(receiver)
}

func StreamOutHTTP(baseURL, token string) StreamOutOption {
	return base.StreamOutHTTP(baseURL, token)
}

func StreamOutTimescale(connString string) StreamOutOption {
	return base.StreamOutTimescale(connString)
}

func StreamOutStore(s RemoteStore) StreamOutOption {
	return base.StreamOutStore(s)
}

func StreamOutTransformer(tr Transformer) StreamOutOption {
	return base.StreamOutTransformer(tr)
}

func StreamOutCallback(name string, fn BatchHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Recorder and options.
func NewRecorder(cfg *Config, opts ...RecorderOption) (*Recorder, error) {
	return base.NewRecorder(cfg, opts...)
}

func WithLocationSource(src LocationSource) RecorderOption {
	return base.WithLocationSource(src)
}

func WithMotionSource(src MotionSource) RecorderOption {
	return base.WithMotionSource(src)
}

func WithRemoteStore(s RemoteStore) RecorderOption {
	return base.WithRemoteStore(s)
}

func WithTransformer(tr Transformer) RecorderOption {
	return base.WithTransformer(tr)
}

func WithObservability(obs Observability) RecorderOption {
	return base.WithObservability(obs)
}

func WithConnectivity(online bool) RecorderOption {
	return base.WithConnectivity(online)
}

func WithAuth(a AuthProvider) RecorderOption {
	return base.WithAuth(a)
}

// Store adapters and host feed.
func NewCallbackStore(name string, fn BatchHandler) RemoteStore {
	return base.NewCallbackStore(name, fn)
}

func NewChannelStore(name string, buffer int) (RemoteStore, <-chan Batch, func()) {
	return base.NewChannelStore(name, buffer)
}

func NewFeed() *Feed {
	return base.NewFeed()
}
