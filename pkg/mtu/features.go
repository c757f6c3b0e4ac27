// Package mtu implements the MTU Predictor (spec §4.G): a pluggable model
// that turns live per-connection statistics into an MTU recommendation and
// periodically pushes it into a Fragmenter.
package mtu

// NetworkType classifies the link a connection rides on (spec §4.G).
type NetworkType int

const (
	NetworkUnknown NetworkType = iota
	NetworkEthernet
	NetworkWifi
	NetworkCellular
	NetworkSatellite
)

// Features is the per-connection input to a Model's prediction (spec §4.G).
type Features struct {
	AvgRTTMs          float64
	AvgThroughputBps  float64
	PacketLossRate    float64
	CongestionWindow  int
	AvgPacketSize     int
	PacketSizeStdDev  float64
	NetworkType       NetworkType
	TimeOfDayHour     int
}

// Model is the pluggable MTU prediction contract (spec §4.G): an alternate
// model implementing Predict/Update may be substituted at configuration
// time in place of the default rule-based one.
type Model interface {
	Predict(f Features, currentMTU, minMTU, maxMTU int) int
	Update(f Features, observedOptimal int)
}
