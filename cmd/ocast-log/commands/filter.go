package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/Orange-OpenSource/ocast-go/pkg/log"
)

// FilterOptions specifies the criteria of the filter command. Empty fields
// match everything.
type FilterOptions struct {
	Output    string
	ConnID    string
	DeviceID  string
	Domain    string
	Service   string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

func (o FilterOptions) build() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: o.ConnID,
		DeviceID:     o.DeviceID,
		Domain:       o.Domain,
		Service:      o.Service,
	}

	for _, bound := range []struct {
		flag  string
		value string
		dst   **time.Time
	}{
		{"time-start", o.TimeStart, &filter.TimeStart},
		{"time-end", o.TimeEnd, &filter.TimeEnd},
	} {
		if bound.value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, bound.value)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid %s format: %w", bound.flag, err)
		}
		*bound.dst = &t
	}

	if o.Layer != "" {
		l, err := ParseLayerFlag(o.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirectionFlag(o.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// RunFilter copies the matching events of the capture at path into
// opts.Output and returns how many were written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	filter, err := opts.build()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
	if n := logger.Dropped(); n > 0 {
		return count - n, fmt.Errorf("%d events could not be written", n)
	}
	return count, nil
}
