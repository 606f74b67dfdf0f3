// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"gvisor.dev/dvfs/dvfsd/flag"
	"gvisor.dev/dvfs/pkg/abi/scmi"
	"gvisor.dev/dvfs/pkg/clk"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("root", "", "root directory for the daemon lock file and socket.")
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default), json, json-k8s or glog.")
	flagSet.Bool("debug", false, "enable debug logging.")

	// Debugging flags.
	flagSet.String("debug-log", "", "additional location for logs. The following variables are available: %TIMESTAMP%, %COMMAND%.")
	flagSet.String("debug-log-format", "text", "log format for --debug-log: text (default), json, json-k8s or glog.")

	// Service flags.
	flagSet.String("socket", "", "unix socket on which service calls are served. Default is <root>/dvfsd.sock.")
	flagSet.String("metric-server", "", "if set, address on which to serve metrics: a unix socket path or a TCP address.")
	flagSet.String("opp-table", "", "path to the operating point table, in TOML (.toml) or YAML (.yaml, .yml).")
	flagSet.Duration("setup-timeout", defaultSetupTimeout, "bound on each wait for the power controller during setup.")

	// Power controller flags.
	flagSet.Bool("emulate", false, "emulate the power controller in-process instead of using --shm and --ipcc.")
	flagSet.String("shm", "", "file holding the SCMI shared memory mailbox, e.g. /dev/mem.")
	flagSet.Uint64("shm-offset", 0, "offset of the mailbox within --shm.")
	flagSet.String("ipcc", "", "file holding the IPCC register block, e.g. /dev/mem. Default is --shm.")
	flagSet.Uint64("ipcc-offset", 0, "offset of the IPCC register block within --ipcc.")
	flagSet.Uint("ipcc-channel", scmi.IPCCChannel, "IPCC channel of the mailbox, counted from zero.")
	flagSet.Uint("voltage-domain", scmi.DomainBuck1, "SCMI voltage domain of the CPU supply, unless set by the table.")
	flagSet.Uint64("part-number", 0, "silicon part number used to filter operating points, unless set by the table.")

	// Clock flags.
	flagSet.Var(clockTypePtr(ClockSim), "clock", "CPU frequency driver: sim (default), sysfs.")
	flagSet.String("cpufreq-dir", clk.DefaultPolicyDir, "cpufreq policy directory used by --clock=sysfs.")
}

// NewFromFlags creates a new Config with values coming from command line flags.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(flag.Get(fl.Value))
		obj.Field(i).Set(x)
	}

	if len(conf.RootDir) == 0 {
		// If not set, set default root dir to something (hopefully) user-writeable.
		conf.RootDir = "/var/run/dvfsd"
		// NOTE: empty values for XDG_RUNTIME_DIR should be ignored.
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			conf.RootDir = filepath.Join(runtimeDir, "dvfsd")
		}
	}
	if len(conf.IPCC) == 0 {
		conf.IPCC = conf.Shm
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
// Flags left at their default value are omitted.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if d, ok := field.Interface().(time.Duration); ok {
		return d.String()
	}
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
