package qc

// Category is the top-level classification of a QC segment.
type Category string

const (
	CategoryNone               Category = ""
	CategoryAnalystDefined     Category = "ANALYST_DEFINED"
	CategoryDataAuthentication Category = "DATA_AUTHENTICATION"
	CategoryLongTerm           Category = "LONG_TERM"
	CategoryRejected           Category = "REJECTED"
	CategoryStationSOH         Category = "STATION_SOH"
	CategoryUnprocessed        Category = "UNPROCESSED"
	CategoryWaveform           Category = "WAVEFORM"
)

// Type refines a Category. TypeNone means "no type".
type Type string

const (
	TypeNone            Type = ""
	TypeAggregate       Type = "AGGREGATE"
	TypeCalibration     Type = "CALIBRATION"
	TypeFlat            Type = "FLAT"
	TypeGap             Type = "GAP"
	TypeNoisy           Type = "NOISY"
	TypeSensorProblem   Type = "SENSOR_PROBLEM"
	TypeSpike           Type = "SPIKE"
	TypeStationProblem  Type = "STATION_PROBLEM"
	TypeStationSecurity Type = "STATION_SECURITY"
	TypeTiming          Type = "TIMING"
)

// HasType reports whether t is an actual type rather than TypeNone.
func (t Type) HasType() bool {
	return t != TypeNone
}

// Classification is a (category, type) pair. It is comparable and is used
// directly as a map key, so typed and untyped pairs are distinct keys.
type Classification struct {
	Category Category `json:"category" yaml:"category"`
	Type     Type     `json:"type,omitempty" yaml:"type,omitempty"`
}

func (c Classification) String() string {
	if c.Type.HasType() {
		return string(c.Category) + "/" + string(c.Type)
	}
	return string(c.Category)
}
