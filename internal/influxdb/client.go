package influxdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/coverage"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
)

const coverageMeasurement = "meter_coverage"

// Columns every latest-reading record must carry
var requiredColumns = []string{"_time", "_value", "serial", "source_type"}

// Client is the historical reading store backed by InfluxDB v2
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	config   config.InfluxDBConfig
}

// NewClient initializes the InfluxDB v2 client and verifies connectivity
func NewClient(cfg config.InfluxDBConfig) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB at %s: %w: %w", cfg.URL, models.ErrStoreUnavailable, err)
	}

	return &Client{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		config:   cfg,
	}, nil
}

// Append writes readings as points; it returns only after InfluxDB has
// acknowledged the whole batch.
func (c *Client) Append(ctx context.Context, site string, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		points = append(points, readingPoint(c.config.Measurement, site, r))
	}
	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("append %d readings for site %s: %w: %w", len(readings), site, models.ErrStoreUnavailable, err)
	}
	return nil
}

// LatestPerMeter returns the most recent reading of every serial recorded for site
func (c *Client) LatestPerMeter(ctx context.Context, site string) (map[string]models.Reading, error) {
	if c.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.QueryTimeout)
		defer cancel()
	}

	result, err := c.queryAPI.Query(ctx, latestQuery(c.config.Bucket, c.config.Measurement, site))
	if err != nil {
		return nil, fmt.Errorf("query latest readings for site %s: %w: %w", site, models.ErrStoreUnavailable, err)
	}
	defer result.Close()

	latest := make(map[string]models.Reading)
	for result.Next() {
		r, err := readingFromRecord(c.config.Measurement, site, result.Record())
		if err != nil {
			return nil, err
		}
		if cur, ok := latest[r.Serial]; !ok || !r.Timestamp.Before(cur.Timestamp) {
			latest[r.Serial] = r
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read latest readings for site %s: %w: %w", site, models.ErrStoreUnavailable, err)
	}
	return latest, nil
}

// WriteCoverage records a coverage snapshot for a site/utility selection
func (c *Client) WriteCoverage(ctx context.Context, site string, utility models.UtilityType, cov coverage.Coverage, ts time.Time) error {
	if err := c.writeAPI.WritePoint(ctx, coveragePoint(site, utility, cov, ts)); err != nil {
		return fmt.Errorf("write coverage for %s/%s: %w: %w", site, utility, models.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the InfluxDB client
func (c *Client) Close() {
	c.client.Close()
}

func readingPoint(measurement, site string, r models.Reading) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{
			"site":        site,
			"serial":      r.Serial,
			"source_type": string(r.Source),
		},
		map[string]interface{}{
			"value": r.Value,
		},
		r.Timestamp,
	)
}

func coveragePoint(site string, utility models.UtilityType, cov coverage.Coverage, ts time.Time) *write.Point {
	return write.NewPoint(
		coverageMeasurement,
		map[string]string{
			"site":         site,
			"utility_type": string(utility),
		},
		map[string]interface{}{
			"fetched":  cov.Fetched,
			"expected": cov.Expected,
			"ratio":    cov.Ratio(),
		},
		ts,
	)
}

// latestQuery groups a site's points per serial and keeps the last one by time.
func latestQuery(bucket, measurement, site string) string {
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: 0)
  |> filter(fn: (r) => r._measurement == %s and r._field == "value" and r.site == %s)
  |> group(columns: ["serial"])
  |> sort(columns: ["_time"])
  |> last()`,
		fluxString(bucket), fluxString(measurement), fluxString(site))
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`)

// fluxString quotes s as a Flux string literal. "${" would otherwise start
// an interpolation.
func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func readingFromRecord(measurement, site string, rec *query.FluxRecord) (models.Reading, error) {
	values := rec.Values()
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := values[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return models.Reading{}, &models.SchemaError{Table: measurement, Missing: missing}
	}

	ts, ok := values["_time"].(time.Time)
	if !ok {
		return models.Reading{}, fmt.Errorf("column _time has type %T, want time", values["_time"])
	}
	serial, _ := values["serial"].(string)
	source, _ := values["source_type"].(string)

	var value float64
	switch v := values["_value"].(type) {
	case float64:
		value = v
	case int64:
		value = float64(v)
	case uint64:
		value = float64(v)
	default:
		return models.Reading{}, fmt.Errorf("column _value has type %T, want number", v)
	}

	return models.Reading{
		Site:      site,
		Serial:    serial,
		Timestamp: ts,
		Value:     value,
		Source:    models.SourceType(source),
	}, nil
}
