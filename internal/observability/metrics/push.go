package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	PushRemoteWrite = "remote_write"
	PushGateway     = "pushgateway"

	pushTimeout = 5 * time.Second
)

// PushConfig describes where a process without a scrape endpoint sends its
// collectors.
type PushConfig struct {
	Exporter    string
	Endpoint    string
	Token       string
	Interval    time.Duration
	ServiceName string
	Environment string
}

// Pusher ships one snapshot of a gatherer.
type Pusher interface {
	Push(ctx context.Context, g prometheus.Gatherer) error
}

// NewPusher returns nil when pushing is not configured.
func NewPusher(cfg PushConfig) (Pusher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	switch strings.ToLower(strings.TrimSpace(cfg.Exporter)) {
	case "":
		return nil, nil
	case PushRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, fmt.Errorf("metrics push endpoint: %w", err)
		}
		return &remoteWrite{
			endpoint: endpoint,
			token:    strings.TrimSpace(cfg.Token),
			client:   &http.Client{Timeout: pushTimeout},
		}, nil
	case PushGateway:
		if endpoint == "" {
			return nil, errors.New("metrics push endpoint is required")
		}
		job := strings.TrimSpace(cfg.ServiceName)
		if job == "" {
			job = "monstro-worker"
		}
		return &gateway{endpoint: endpoint, job: job, env: strings.TrimSpace(cfg.Environment)}, nil
	default:
		return nil, fmt.Errorf("unsupported metrics push exporter %q", cfg.Exporter)
	}
}

type remoteWrite struct {
	endpoint string
	token    string
	client   *http.Client
}

func (p *remoteWrite) Push(ctx context.Context, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	series := toSeries(families, time.Now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	body, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write: %s", resp.Status)
	}
	return nil
}

type gateway struct {
	endpoint string
	job      string
	env      string
}

func (p *gateway) Push(ctx context.Context, g prometheus.Gatherer) error {
	pusher := push.New(p.endpoint, p.job).Gatherer(g)
	if p.env != "" {
		pusher = pusher.Grouping("env", p.env)
	}
	return pusher.PushContext(ctx)
}

// toSeries keeps counters and gauges. Histograms stay on the scrape path.
func toSeries(families []*dto.MetricFamily, ts int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			var v float64
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				if m.GetCounter() == nil {
					continue
				}
				v = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				if m.GetGauge() == nil {
					continue
				}
				v = m.GetGauge().GetValue()
			default:
				continue
			}

			labels := []prompb.Label{{Name: "__name__", Value: fam.GetName()}}
			for _, lp := range m.GetLabel() {
				labels = append(labels, prompb.Label{Name: lp.GetName(), Value: lp.GetValue()})
			}
			sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
			out = append(out, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: v, Timestamp: ts}},
			})
		}
	}
	return out
}

// RunPusher pushes the default registry on an interval and once more on stop.
func RunPusher(lc fx.Lifecycle, cfg PushConfig, log *zap.Logger) error {
	pusher, err := NewPusher(cfg)
	if err != nil || pusher == nil {
		return err
	}
	if log == nil {
		log = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log = log.With(zap.String("component", "metrics_push"), zap.String("exporter", cfg.Exporter))

	pushOnce := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, pushTimeout)
		defer cancel()
		if err := pusher.Push(ctx, prometheus.DefaultGatherer); err != nil {
			log.Warn("metrics.push.failed", zap.Error(err))
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						pushOnce(context.Background())
					case <-stop:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			<-done
			pushOnce(ctx)
			return nil
		},
	})
	return nil
}

// PushModule is installed by binaries that do not serve /metrics.
var PushModule = fx.Module("metrics.push", fx.Invoke(RunPusher))
