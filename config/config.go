package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	json "github.com/json-iterator/go"
	"golang.org/x/crypto/bcrypt"
)

type (
	HeadersNumber struct {
		Default int `json:"default"`
		Maximal int `json:"maximal"`
	}
)

type (
	URI struct {
		// MaxLineSize limits the request line. If no CRLF was met in the first MaxLineSize
		// bytes, the request is answered with 414.
		MaxLineSize int `json:"max_line_size"`
	}

	Headers struct {
		// Number is responsible for headers map size.
		// Default value is an initial size of allocated headers map.
		// Maximal value is maximum number of headers allowed to be presented
		Number HeadersNumber `json:"number"`
		// MaxLineSize limits a single header line, otherwise 431 is responded.
		MaxLineSize int `json:"max_line_size"`
	}

	NET struct {
		// ReadBufferSize is the initial capacity of the per-connection read buffer.
		ReadBufferSize int `json:"read_buffer_size"`
		// WriteBufferSize is the initial capacity of the per-connection buffer, holding
		// status line and headers of a response.
		WriteBufferSize int `json:"write_buffer_size"`
		// EdgeTriggered registers sockets in edge-triggered mode. In this mode reads and
		// writes are repeated until the socket would block.
		EdgeTriggered bool `json:"edge_triggered"`
		// ReadTimeout controls the maximal lifetime of IDLE connections. If no data was
		// received in this period of time, it'll be closed.
		ReadTimeout Duration `json:"read_timeout"`
		// PollInterval controls how often the event loop wakes up in order to check
		// whether it's time to stop and to sweep idle connections.
		PollInterval Duration `json:"poll_interval"`
		Backlog      int      `json:"backlog"`
		MaxEvents    int      `json:"max_events"`
	}

	KeepAlive struct {
		// Timeout and Max are advertised via the Keep-Alive response header.
		Timeout Duration `json:"timeout"`
		Max     int      `json:"max"`
	}

	Static struct {
		// Root is the document root, all the requested paths are resolved under it.
		Root string `json:"root"`
	}

	Workers struct {
		Number    int `json:"number"`
		QueueSize int `json:"queue_size"`
	}

	Log struct {
		Level string `json:"level"`
		// Dir enables logging into daily files inside the directory instead of stderr.
		Dir string `json:"dir" test:"nullable"`
		// QueueSize is the capacity of the ring buffer between the server and the
		// writer. Messages are dropped when it is full.
		QueueSize int  `json:"queue_size"`
		Pretty    bool `json:"pretty" test:"nullable"`
	}

	Users struct {
		// HashCost is the bcrypt cost used for stored passwords.
		HashCost int `json:"hash_cost"`
	}
)

// Config holds settings used across various parts of the server, mainly restrictions,
// limitations and pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	URI       URI       `json:"uri"`
	Headers   Headers   `json:"headers"`
	NET       NET       `json:"net"`
	KeepAlive KeepAlive `json:"keep_alive"`
	Static    Static    `json:"static"`
	Workers   Workers   `json:"workers"`
	Log       Log       `json:"log"`
	Users     Users     `json:"users"`
}

// Default returns default config.
func Default() *Config {
	return &Config{
		URI: URI{
			MaxLineSize: 8 * 1024,
		},
		Headers: Headers{
			Number: HeadersNumber{
				Default: 10,
				Maximal: 50,
			},
			MaxLineSize: 8 * 1024,
		},
		NET: NET{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			EdgeTriggered:   true,
			ReadTimeout:     Duration(60 * time.Second),
			PollInterval:    Duration(500 * time.Millisecond),
			Backlog:         1024,
			MaxEvents:       1024,
		},
		KeepAlive: KeepAlive{
			Timeout: Duration(120 * time.Second),
			Max:     6,
		},
		Static: Static{
			Root: "./resources",
		},
		Workers: Workers{
			Number:    runtime.NumCPU(),
			QueueSize: 1024,
		},
		Log: Log{
			Level:     "info",
			QueueSize: 1024,
		},
		Users: Users{
			HashCost: bcrypt.DefaultCost,
		},
	}
}

// Load reads a JSON file and applies it on top of the defaults. Fields missing in the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	if err = json.ConfigCompatibleWithStandardLibrary.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Duration is a time.Duration, represented in JSON as a string like "90s" or "1m30s".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	str, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("bad duration %s: must be a string", data)
	}

	parsed, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(parsed)
	return nil
}
