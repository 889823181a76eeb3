package config

const (
	defaultDataDir           = "~/.local/share/minewatch"
	defaultLogDir            = "~/.local/share/minewatch/logs"
	defaultMinesFile         = "~/.config/minewatch/mines.geojson"
	defaultCSVDir            = "~/.local/share/minewatch/samples"
	defaultAPIBind           = "127.0.0.1:7611"
	defaultProviderKind      = ProviderCSV
	defaultProviderTimeout   = 120
	defaultProviderRate      = 2.0
	defaultProviderBurst     = 1
	defaultTrees             = 200
	defaultSampleSize        = 256
	defaultSeed              = 42
	defaultZoneQuantileUpper = 0.9
	defaultZoneQuantileLower = 0.1
	defaultZoneBuffer        = 0.0005
	defaultZoneMinPoints     = 1
	defaultPixelAreaM2       = 100.0
	defaultMinWindowDays     = 21
	defaultMaxConcurrent     = 2
	defaultTaskTTLSeconds    = 3600
	defaultJanitorSeconds    = 60
	defaultNotifyTimeout     = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			MinesFile: defaultMinesFile,
			CSVDir:    defaultCSVDir,
			APIBind:   defaultAPIBind,
		},
		Provider: Provider{
			Kind:           defaultProviderKind,
			RequestTimeout: defaultProviderTimeout,
			RatePerSecond:  defaultProviderRate,
			Burst:          defaultProviderBurst,
		},
		Detection: Detection{
			Trees:             defaultTrees,
			SampleSize:        defaultSampleSize,
			Seed:              defaultSeed,
			ZoneQuantileUpper: defaultZoneQuantileUpper,
			ZoneQuantileLower: defaultZoneQuantileLower,
			ZoneBufferDegrees: defaultZoneBuffer,
			ZoneMinPoints:     defaultZoneMinPoints,
			PixelAreaM2:       defaultPixelAreaM2,
			MinWindowDays:     defaultMinWindowDays,
		},
		Pipeline: Pipeline{
			MaxConcurrentTasks:     defaultMaxConcurrent,
			TaskTTLSeconds:         defaultTaskTTLSeconds,
			JanitorIntervalSeconds: defaultJanitorSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Alerts:         true,
			Pipeline:       true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
