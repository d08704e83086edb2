package occupancy

// Bounds is an inclusive [Lo, Hi] range filter for one column. Either side
// may be nil (unbounded), but not both.
type Bounds struct {
	Lo *float64 `yaml:"lo" json:"lo"`
	Hi *float64 `yaml:"hi" json:"hi"`
}

// Contains reports whether v falls inside the bounds.
func (b Bounds) Contains(v float64) bool {
	if b.Lo != nil && v < *b.Lo {
		return false
	}
	if b.Hi != nil && v > *b.Hi {
		return false
	}
	return true
}

// NightConfig is an hour range [StartHour, EndHour). Ranges may wrap past
// midnight (e.g. 22..6).
type NightConfig struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// Contains reports whether the given hour falls inside the range.
func (n NightConfig) Contains(hour int) bool {
	if n.StartHour <= n.EndHour {
		return hour >= n.StartHour && hour < n.EndHour
	}
	return hour >= n.StartHour || hour < n.EndHour
}

// FeatureConfig holds every tunable of the feature engineer.
type FeatureConfig struct {
	// InterpolationLimit is the maximum run of consecutive missing CO2
	// values that gets interpolated; longer gaps stay missing.
	InterpolationLimit int `yaml:"interpolation_limit"`

	// StagnationMinRun is the minimum run of identical consecutive CO2
	// values that counts as a stuck sensor and is removed.
	StagnationMinRun int `yaml:"stagnation_min_run"`

	// Bounds maps column names (CO2, TEMP, MOTION, IAQ) to range filters.
	Bounds map[string]Bounds `yaml:"bounds"`

	// Fill values for missing auxiliary sensor columns.
	FillCO2    float64 `yaml:"fill_co2"`
	FillTemp   float64 `yaml:"fill_temp"`
	FillMotion float64 `yaml:"fill_motion"`
	FillIAQ    float64 `yaml:"fill_iaq"`

	// DayCompleteness is the minimum fraction of the 96 expected slots a
	// calendar day must have to survive the day-completeness filter.
	DayCompleteness float64 `yaml:"day_completeness"`

	// SmoothingSigma is the gaussian kernel standard deviation in slots.
	SmoothingSigma float64 `yaml:"smoothing_sigma"`

	// KinematicWindow is the rolling window for derivative features.
	KinematicWindow int `yaml:"kinematic_window"`

	// Night is the hour range flagged as night in the feature vector.
	Night NightConfig `yaml:"night"`

	// Columns selects the feature columns fed to the model.
	Columns []string `yaml:"columns"`
}

// UsageConfig holds the usage-estimator tunables.
type UsageConfig struct {
	Coeff float64 `yaml:"coeff"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// ModelConfig holds the isolation-forest hyperparameters.
type ModelConfig struct {
	Trees      int   `yaml:"trees"`
	SampleSize int   `yaml:"sample_size"`
	Seed       int64 `yaml:"seed"`

	// DefaultContamination is used when the usage estimator returns the
	// auto sentinel (empty input).
	DefaultContamination float64 `yaml:"default_contamination"`
}

// HeuristicsConfig holds the post-processor rule thresholds. Two divergent
// threshold sets exist in deployments (low-CO2 cutoff 325/400/600, night
// suppression unconditional vs score-gated); all are exposed here and the
// defaults follow the most recent deployment.
type HeuristicsConfig struct {
	// Night is the suppression hour range.
	Night NightConfig `yaml:"night"`

	// NightScoreGate, when set, limits night suppression to rows whose
	// anomaly score is at or below the gate. Unset means unconditional.
	NightScoreGate *float64 `yaml:"night_score_gate"`

	// LowCO2 forces in-use to 0 at or below this level.
	LowCO2 float64 `yaml:"low_co2"`

	// MidCO2 and RisingAccel force in-use to 1 when CO2 exceeds MidCO2
	// while accelerating faster than RisingAccel.
	MidCO2      float64 `yaml:"mid_co2"`
	RisingAccel float64 `yaml:"rising_accel"`

	// HighCO2 forces in-use to 1 unconditionally above this level.
	HighCO2 float64 `yaml:"high_co2"`
}

// RedisConfig configures the scored-output store. An empty Addr disables
// persistence.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	Retries int    `yaml:"retries"`
}

// MQTTConfig configures outbound result publishing. An empty Broker
// disables MQTT.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// PlotConfig configures the room plot renderer.
type PlotConfig struct {
	WidthMM  float64 `yaml:"width_mm"`
	HeightMM float64 `yaml:"height_mm"`
	DPI      float64 `yaml:"dpi"`
}

// Config is the unified pipeline configuration.
type Config struct {
	Features   FeatureConfig    `yaml:"features"`
	Usage      UsageConfig      `yaml:"usage"`
	Model      ModelConfig      `yaml:"model"`
	Heuristics HeuristicsConfig `yaml:"heuristics"`

	// Workers bounds the per-room worker pool in train/predict batches.
	Workers int `yaml:"workers"`

	Redis RedisConfig `yaml:"redis"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
	Plots PlotConfig  `yaml:"plots"`
}

func floatPtr(v float64) *float64 { return &v }

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Features: FeatureConfig{
			InterpolationLimit: 3,
			StagnationMinRun:   4,
			Bounds: map[string]Bounds{
				ColCO2:  {Lo: floatPtr(0), Hi: floatPtr(8000)},
				ColTemp: {Lo: floatPtr(-1), Hi: floatPtr(50)},
			},
			FillCO2:         487,
			FillTemp:        20.0,
			FillMotion:      0.0,
			FillIAQ:         0.03,
			DayCompleteness: 0.25,
			SmoothingSigma:  2.0,
			KinematicWindow: 4,
			Night:           NightConfig{StartHour: 22, EndHour: 6},
			Columns: []string{
				ColCO2,
				ColCO2Velocity,
				ColCO2Acceleration,
				ColCO2Jerk,
				ColIsNight,
			},
		},
		Usage: UsageConfig{Coeff: 2.1, Min: 0.1, Max: 0.4},
		Model: ModelConfig{
			Trees:                300,
			SampleSize:           256,
			Seed:                 42,
			DefaultContamination: 0.1,
		},
		Heuristics: HeuristicsConfig{
			Night:       NightConfig{StartHour: 0, EndHour: 6},
			LowCO2:      400,
			MidCO2:      600,
			RisingAccel: 0,
			HighCO2:     1400,
		},
		Workers: 4,
		Redis:   RedisConfig{Retries: 3},
		MQTT:    MQTTConfig{TopicPrefix: "roomsense"},
		Plots:   PlotConfig{WidthMM: 240, HeightMM: 80, DPI: 150},
	}
}
