package generation

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/yndnr/forkhttpd/internal/server/config"
	"github.com/yndnr/forkhttpd/internal/supervisor/restartsem"
)

// Inherited descriptors of a generation process.
const (
	ConfigFD  = 3
	RestartFD = 4
)

// Inherit reads the configuration record and opens the restart semaphore
// handed down by the manager.
func Inherit() (*config.Config, *restartsem.Poster, error) {
	return inheritFrom(ConfigFD, RestartFD)
}

func inheritFrom(configFD, restartFD uintptr) (*config.Config, *restartsem.Poster, error) {
	if _, err := unix.FcntlInt(configFD, unix.F_GETFD, 0); err != nil {
		return nil, nil, fmt.Errorf("generation: no configuration on descriptor %d: %w", configFD, err)
	}
	f := os.NewFile(configFD, "config-record")
	record, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("generation: read configuration: %w", err)
	}

	cfg, err := config.Decode(record)
	if err != nil {
		return nil, nil, err
	}

	poster, err := restartsem.OpenPoster(restartFD)
	if err != nil {
		return nil, nil, err
	}
	return cfg, poster, nil
}
