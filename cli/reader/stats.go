package reader

import "github.com/pithecene-io/framewrap/metrics"

// NewStatsView flattens a metrics snapshot.
func NewStatsView(s metrics.Snapshot) StatsView {
	return StatsView{
		PipelineID:     s.PipelineID,
		Direction:      s.Direction,
		Transport:      s.Transport,
		Frames:         s.TotalFrames(),
		AudioFrames:    s.Audio.Frames,
		VideoFrames:    s.Video.Frames,
		BytesIn:        s.Audio.BytesIn + s.Video.BytesIn,
		BytesOut:       s.Audio.BytesOut + s.Video.BytesOut,
		Passthrough:    s.Audio.Passthrough + s.Video.Passthrough,
		Malformed:      s.Audio.Malformed + s.Video.Malformed,
		ConfigUpdates:  s.ConfigUpdates,
		ConfigRejected: s.ConfigRejected,
		CryptoKeys:     s.CryptoKeys,
		TraceWrites:    s.TraceWriteSuccess,
		TraceFailures:  s.TraceWriteFailure,
	}
}
