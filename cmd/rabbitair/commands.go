package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zberg/go-rabbitair/pkg/rabbitair"
)

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	host       string
	token      string
	port       int
	timeout    time.Duration
	retries    int
	protocol   string
	tcp        bool
	debug      bool
}

var flags globalFlags

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/rabbitair/config.yaml)")
	pf.StringVar(&flags.host, "host", "", "host name or IP address of the purifier")
	pf.StringVar(&flags.token, "token", "", "hex encoded access token")
	pf.IntVar(&flags.port, "port", 9009, "port of the purifier")
	pf.DurationVar(&flags.timeout, "timeout", 2*time.Second, "time to wait for each reply (5s over TCP)")
	pf.IntVar(&flags.retries, "retries", 2, "number of resends after a timeout (0 over TCP)")
	pf.StringVar(&flags.protocol, "protocol", "firmware", "message layout: firmware or sealed")
	pf.BoolVar(&flags.tcp, "tcp", false, "connect over TCP instead of UDP")
	pf.BoolVar(&flags.debug, "debug", false, "log protocol traffic to stderr")

	addSetFlags(setCmd.Flags())

	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(rawCmd)
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the current state of the purifier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		state, err := client.GetState(cmd.Context())
		if err != nil {
			return fmt.Errorf("error getting state: %w", err)
		}
		printState(cmd.OutOrStdout(), state)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change one or more settings",
	Example: `  rabbitair set --power --mode Manual --speed Low
  rabbitair set --moodlight Off --lights Auto`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildSetRequest(cmd.Flags())
		if err != nil {
			return err
		}

		client, err := getClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		state, err := client.SetState(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("error changing state: %w", err)
		}
		if state.Len() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Command sent successfully.")
			return nil
		}
		printState(cmd.OutOrStdout(), state)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show Wi-Fi module information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		info, err := client.GetInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("error getting info: %w", err)
		}
		printInfo(cmd.OutOrStdout(), info)
		return nil
	},
}

var rawCmd = &cobra.Command{
	Use:   "raw <opcode> [fields]",
	Short: "Send an unvalidated command",
	Long: `Send fields under an arbitrary opcode and print the decoded reply.
Fields are a JSON object keyed by wire name, for example
'{"power": true, "speed": 2}'. With --protocol sealed a numeric tag such as
"200" addresses a field by tag. Values are not checked against their domains.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return fmt.Errorf("invalid opcode %q: must be 0-255", args[0])
		}
		var fields map[string]any
		if len(args) == 2 {
			fields, err = parseRawFields(args[1])
			if err != nil {
				return err
			}
		}

		client, err := getClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		reply, err := client.Command(cmd.Context(), rabbitair.Opcode(op), fields)
		if err != nil {
			return fmt.Errorf("error sending command: %w", err)
		}
		printFields(cmd.OutOrStdout(), reply)
		return nil
	},
}

func getClient(cmd *cobra.Command) (*rabbitair.Client, error) {
	path, explicit := flags.configPath, flags.configPath != ""
	if !explicit {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	file, err := loadConfig(path, explicit)
	if err != nil {
		return nil, err
	}
	s, err := resolve(file, &flags, cmd.Flags().Changed)
	if err != nil {
		return nil, err
	}

	var opts []rabbitair.ClientOption
	if s.port != 0 {
		opts = append(opts, rabbitair.WithPort(s.port))
	}
	if s.timeout != 0 {
		opts = append(opts, rabbitair.WithRequestTimeout(s.timeout))
	}
	if s.retries >= 0 {
		opts = append(opts, rabbitair.WithMaxRetries(s.retries))
	}
	if s.protocol != rabbitair.ProtocolFirmware {
		opts = append(opts, rabbitair.WithProtocol(s.protocol))
	}
	if s.tcp {
		opts = append(opts, rabbitair.WithTCP())
	}
	if s.debug {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		opts = append(opts, rabbitair.WithLogger(slog.New(handler)))
	}

	client, err := rabbitair.NewClient(s.host, s.token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating client for %s: %w", s.host, err)
	}
	return client, nil
}

func addSetFlags(fs *pflag.FlagSet) {
	fs.Bool("power", false, "turn the purifier on or off")
	fs.String("mode", "", "mode (Auto, Pollen, Manual)")
	fs.String("speed", "", "fan speed (Silent, Low, Medium, High, Turbo)")
	fs.String("sensitivity", "", "sensor sensitivity (High, Medium, Low)")
	fs.Bool("ionizer", false, "ionizer on or off")
	fs.String("moodlight", "", "Mood Light (Off, On, Auto, Preset1, Preset2, Preset3)")
	fs.Bool("filter-cleaning", false, "filter cleaning reminder")
	fs.Bool("filter-replacement", false, "filter replacement reminder")
	fs.Int("filter-life", 0, "remaining filter life in minutes")
	fs.Int("filter-timer", 0, "nominal filter life in minutes")
	fs.String("lights", "", "panel lights (Off, On, Auto)")
	fs.IntSlice("color", nil, "Mood Light palette, nine values 0-40")
	fs.Bool("light-sensor", false, "light sensor control")
	fs.Bool("filter-ctl", false, "filter control")
	fs.Bool("buzzer", false, "buzzer on or off")
	fs.Bool("child-lock", false, "child lock on or off")
	fs.String("timer-mode", "", "timer mode (Off, On, Schedule)")
	fs.Int("timer", 0, "minutes until the purifier turns itself off")
	fs.String("schedule", "", "24 characters, one speed (0-5 or A) per UTC hour")
}

// buildSetRequest turns the flags that were given into a SetRequest.
// Flags left at their defaults are not sent.
func buildSetRequest(fs *pflag.FlagSet) (rabbitair.SetRequest, error) {
	var (
		req rabbitair.SetRequest
		err error
	)

	boolFlag := func(name string, dst **bool) {
		if err != nil || !fs.Changed(name) {
			return
		}
		var v bool
		if v, err = fs.GetBool(name); err == nil {
			*dst = &v
		}
	}
	intFlag := func(name string, dst **int) {
		if err != nil || !fs.Changed(name) {
			return
		}
		var v int
		if v, err = fs.GetInt(name); err == nil {
			*dst = &v
		}
	}
	stringFlag := func(name string) (string, bool) {
		if err != nil || !fs.Changed(name) {
			return "", false
		}
		var v string
		v, err = fs.GetString(name)
		return v, err == nil
	}

	boolFlag("power", &req.Power)
	boolFlag("ionizer", &req.Ionizer)
	boolFlag("filter-cleaning", &req.FilterCleaning)
	boolFlag("filter-replacement", &req.FilterReplacement)
	boolFlag("light-sensor", &req.LightSensorCtl)
	boolFlag("filter-ctl", &req.FilterCtl)
	boolFlag("buzzer", &req.Buzzer)
	boolFlag("child-lock", &req.ChildLock)
	intFlag("filter-life", &req.FilterLife)
	intFlag("filter-timer", &req.FilterTimer)
	intFlag("timer", &req.Timer)

	if s, ok := stringFlag("mode"); ok {
		var v rabbitair.Mode
		if v, err = rabbitair.ParseMode(s); err == nil {
			req.Mode = &v
		}
	}
	if s, ok := stringFlag("speed"); ok {
		var v rabbitair.Speed
		if v, err = rabbitair.ParseSpeed(s); err == nil {
			req.Speed = &v
		}
	}
	if s, ok := stringFlag("sensitivity"); ok {
		var v rabbitair.Sensitivity
		if v, err = rabbitair.ParseSensitivity(s); err == nil {
			req.Sensitivity = &v
		}
	}
	if s, ok := stringFlag("moodlight"); ok {
		var v rabbitair.Moodlight
		if v, err = rabbitair.ParseMoodlight(s); err == nil {
			req.Moodlight = &v
		}
	}
	if s, ok := stringFlag("lights"); ok {
		var v rabbitair.Lights
		if v, err = rabbitair.ParseLights(s); err == nil {
			req.Lights = &v
		}
	}
	if s, ok := stringFlag("timer-mode"); ok {
		var v rabbitair.TimerMode
		if v, err = rabbitair.ParseTimerMode(s); err == nil {
			req.TimerMode = &v
		}
	}
	if s, ok := stringFlag("schedule"); ok {
		req.Schedule = &s
	}
	if err == nil && fs.Changed("color") {
		req.Color, err = fs.GetIntSlice("color")
	}
	if err != nil {
		return rabbitair.SetRequest{}, err
	}

	// Range checks happen here so that bad input never opens a socket.
	if _, err := req.Fields(); err != nil {
		return rabbitair.SetRequest{}, err
	}
	return req, nil
}

// parseRawFields parses a JSON object of wire name to value. Numbers must
// be integers.
func parseRawFields(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid fields: %w", err)
	}

	fields := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == "" {
			return nil, errors.New("empty field name")
		}
		value, err := rawValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[k] = value
	}
	return fields, nil
}

func rawValue(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s is not an integer", v)
		}
		return n, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			var err error
			if out[i], err = rawValue(e); err != nil {
				return nil, err
			}
		}
		return out, nil
	case bool, string, nil:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported value %v", v)
}

func printState(w io.Writer, state *rabbitair.State) {
	for _, f := range state.Fields() {
		fmt.Fprintf(w, "%-20s %s\n", f, formatField(state, f))
	}
}

// formatField renders enum fields by name.
func formatField(state *rabbitair.State, f rabbitair.Field) string {
	var s fmt.Stringer
	switch f {
	case rabbitair.FieldModel:
		s, _ = state.Model()
	case rabbitair.FieldFirmware:
		fw, _ := state.MainFirmware()
		return fw
	case rabbitair.FieldMode:
		s, _ = state.Mode()
	case rabbitair.FieldSpeed:
		s, _ = state.Speed()
	case rabbitair.FieldQuality:
		s, _ = state.Quality()
	case rabbitair.FieldSensitivity:
		s, _ = state.Sensitivity()
	case rabbitair.FieldMoodlight:
		m, _ := state.Moodlight()
		if model, _ := state.Model(); model == rabbitair.ModelA3 && m == rabbitair.MoodlightPreset1 {
			return "Preset1"
		}
		s = m
	case rabbitair.FieldLights:
		s, _ = state.Lights()
	case rabbitair.FieldError:
		s, _ = state.Fault()
	case rabbitair.FieldFilterType:
		s, _ = state.FilterType()
	case rabbitair.FieldGas:
		s, _ = state.Gas()
	case rabbitair.FieldTimerMode:
		s, _ = state.TimerMode()
	default:
		v, _ := state.Value(f)
		return fmt.Sprint(v)
	}
	return s.String()
}

func printInfo(w io.Writer, info *rabbitair.Info) {
	fmt.Fprintf(w, "Name:            %s\n", info.Name)
	fmt.Fprintf(w, "Wi-Fi firmware:  %s (build %s)\n", info.WiFiFirmware, info.Build)
	fmt.Fprintf(w, "MAC:             %s\n", info.MAC)
	if info.MainFirmware != nil {
		fmt.Fprintf(w, "Main firmware:   %s\n", *info.MainFirmware)
	}
	if info.Time != nil {
		fmt.Fprintf(w, "Time:            %s\n", *info.Time)
	}
	fmt.Fprintf(w, "Uptime:          %ds (motor %ds, Wi-Fi %ds)\n", info.Uptime, info.MotorUptime, info.WiFiUptime)
	if info.InternetUptime != nil {
		fmt.Fprintf(w, "Internet uptime: %ds\n", *info.InternetUptime)
	}
	if info.CloudUptime != nil {
		fmt.Fprintf(w, "Cloud uptime:    %ds\n", *info.CloudUptime)
	}
	if r := info.RSSI; r != nil {
		fmt.Fprintf(w, "RSSI:            %d dBm (min %d, max %d, avg %d)\n", r.Current, r.Min, r.Max, r.Average)
	}
}

func printFields(w io.Writer, fields map[string]any) {
	if len(fields) == 0 {
		fmt.Fprintln(w, "Empty reply.")
		return
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		fmt.Fprintf(w, "%-20s %v\n", k, fields[k])
	}
}
