// Package config loads simulator run configuration (memory sizing,
// cycle cap, stack pointer, BTB/predictor sizing, workload search path)
// from command-line flags, using viper bound to the command's pflag set
// (cmd/rv32sim/main.go registers these flags at command construction
// time). No config file or environment variable is read.
package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sarchlab/rv32pipe/btb"
)

// Config holds one simulator run's settings (spec §6/§9).
type Config struct {
	// MemoryWordBits sizes both icache and dcache to 2^MemoryWordBits words.
	MemoryWordBits uint

	// MaxCycles caps a run; 0 means unbounded (run until EBREAK).
	MaxCycles uint64

	// StackTop is the initial stack-pointer value (spec §9 default: 0x40000).
	StackTop uint32

	// BTBEntries and the predictor table sizes (spec §4.5).
	BTBEntries      int
	PredictorConfig btb.PredictorConfig

	// WorkloadDir holds the --workload-dir setting. cmd/rv32sim takes the
	// workload directory from its first argument and does not read it.
	WorkloadDir string
}

// Defaults returns the simulator's default configuration.
func Defaults() Config {
	return Config{
		MemoryWordBits:  16,
		MaxCycles:       0,
		StackTop:        0x40000,
		BTBEntries:      btb.DefaultEntries,
		PredictorConfig: btb.DefaultPredictorConfig(),
		WorkloadDir:     ".",
	}
}

// BindFlags registers the configuration's flags onto fs, defaulting to
// Defaults(). Call it once per flag set; call Load afterward (once
// fs.Parse has run) to read the resolved flag values back out.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	d := Defaults()

	fs.Uint("mem-word-bits", d.MemoryWordBits, "icache/dcache size as 2^N words")
	fs.Uint64("max-cycles", d.MaxCycles, "cycle cap for a run (0 = unbounded)")
	fs.Uint32("stack-top", d.StackTop, "initial stack pointer value")
	fs.Int("btb-entries", d.BTBEntries, "branch target buffer entry count")
	fs.Int("bimodal-entries", d.PredictorConfig.BimodalEntries, "bimodal predictor table size")
	fs.Int("gshare-entries", d.PredictorConfig.GshareEntries, "gshare predictor table size")
	fs.Int("selector-entries", d.PredictorConfig.SelectorEntries, "tournament selector table size")
	fs.String("workload-dir", d.WorkloadDir, "directory to search for named workloads")

	_ = v.BindPFlags(fs)
}

// Load resolves a Config from v, falling back to Defaults() for any
// unset key.
func Load(v *viper.Viper) Config {
	d := Defaults()
	return Config{
		MemoryWordBits: getUint(v, "mem-word-bits", d.MemoryWordBits),
		MaxCycles:      v.GetUint64("max-cycles"),
		StackTop:       getUint32(v, "stack-top", d.StackTop),
		BTBEntries:     getInt(v, "btb-entries", d.BTBEntries),
		PredictorConfig: btb.PredictorConfig{
			BimodalEntries:  getInt(v, "bimodal-entries", d.PredictorConfig.BimodalEntries),
			GshareEntries:   getInt(v, "gshare-entries", d.PredictorConfig.GshareEntries),
			SelectorEntries: getInt(v, "selector-entries", d.PredictorConfig.SelectorEntries),
		},
		WorkloadDir: getString(v, "workload-dir", d.WorkloadDir),
	}
}

func getUint(v *viper.Viper, key string, def uint) uint {
	if !v.IsSet(key) {
		return def
	}
	return uint(v.GetInt(key))
}

func getUint32(v *viper.Viper, key string, def uint32) uint32 {
	if !v.IsSet(key) {
		return def
	}
	return uint32(v.GetInt(key))
}

func getInt(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	return v.GetInt(key)
}

func getString(v *viper.Viper, key string, def string) string {
	if !v.IsSet(key) {
		return def
	}
	return v.GetString(key)
}
