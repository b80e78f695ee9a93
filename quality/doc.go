// Package quality implements the quality snapshot and regression
// engine: point-in-time metric snapshots, a singleton
// baseline, configurable gates, and multi-severity regression
// detection against that baseline.
//
// DetectRegressions and CheckQualityGates are pure functions over
// Metrics values; GormEngine is the only piece that touches storage,
// recording and retrieving Snapshot history and the baseline pointer.
package quality
