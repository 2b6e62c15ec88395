package alarm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/timeutil"
)

// TimeLayout is the analyseTime format expected by the receiving service.
const TimeLayout = "2006-01-02 15:04:05"

// DefaultForwardTimeout bounds one webhook POST.
const DefaultForwardTimeout = 10 * time.Second

// Payload is the webhook request body.
type Payload struct {
	AlarmName   string  `json:"alarmName"`
	AnalyseTime string  `json:"analyseTime"`
	ImageData   *string `json:"ImageData"`
}

// ForwardResult is the outcome of one Forward call.
type ForwardResult string

const (
	// ForwardDisabled means no endpoint is configured.
	ForwardDisabled ForwardResult = "disabled"
	// ForwardSuppressed means the call fell inside the debounce interval.
	ForwardSuppressed ForwardResult = "suppressed"
	// ForwardDispatched means a POST was started.
	ForwardDispatched ForwardResult = "dispatched"
)

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	// Endpoint receives the POST. Empty disables forwarding.
	Endpoint string
	// Token is sent as a bearer token when set.
	Token string
	// Timeout bounds each POST. Zero means DefaultForwardTimeout.
	Timeout time.Duration
	// Debounce is the minimum spacing between dispatched POSTs.
	Debounce time.Duration
}

// Forwarder posts alarms to a webhook, best effort. Each session owns one so
// debounce is per session.
type Forwarder struct {
	cfg     ForwarderConfig
	client  *http.Client
	clock   timeutil.Clock
	limiter *rate.Limiter
	// OnResult, when set, observes the outcome of every POST.
	OnResult func(err error)

	mu       sync.Mutex
	debounce time.Duration
	wg       sync.WaitGroup
}

// NewForwarder creates a forwarder. A nil client uses a fresh http.Client.
func NewForwarder(cfg ForwarderConfig, client *http.Client, clock timeutil.Clock) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultForwardTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Forwarder{
		cfg:      cfg,
		client:   client,
		clock:    clock,
		limiter:  rate.NewLimiter(limitFor(cfg.Debounce), 1),
		debounce: cfg.Debounce,
	}
}

func limitFor(debounce time.Duration) rate.Limit {
	if debounce <= 0 {
		return rate.Inf
	}
	return rate.Every(debounce)
}

// SetDebounce changes the debounce interval. Sessions call it every iteration
// with the live policy value; unchanged values are a no-op.
func (f *Forwarder) SetDebounce(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d == f.debounce {
		return
	}
	f.debounce = d
	f.limiter.SetLimitAt(f.clock.Now(), limitFor(d))
}

// Allow consumes the debounce slot when it is free.
func (f *Forwarder) Allow() bool {
	return f.limiter.AllowN(f.clock.Now(), 1)
}

// Forward dispatches ev in the background unless debounced. It never blocks on
// the network and never fails the caller.
func (f *Forwarder) Forward(ev Event) ForwardResult {
	if f.cfg.Endpoint == "" {
		return ForwardDisabled
	}
	if !f.Allow() {
		klog.V(2).InfoS("Alarm forward suppressed", "camera", ev.CameraID, "algorithm", ev.AlgorithmID, "alarm", ev.ID)
		return ForwardSuppressed
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		err := f.post(ev)
		if err != nil {
			klog.ErrorS(err, "Alarm forward failed", "camera", ev.CameraID, "algorithm", ev.AlgorithmID,
				"alarm", ev.ID, "endpoint", f.cfg.Endpoint)
		} else {
			klog.V(2).InfoS("Alarm forwarded", "camera", ev.CameraID, "algorithm", ev.AlgorithmID, "alarm", ev.ID)
		}
		if f.OnResult != nil {
			f.OnResult(err)
		}
	}()
	return ForwardDispatched
}

// Wait blocks until in-flight POSTs finish.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

// BuildPayload renders the webhook body. An unreadable annotated image sends
// a null ImageData.
func BuildPayload(ev Event) Payload {
	p := Payload{AlarmName: ev.AlarmName, AnalyseTime: ev.Timestamp.Format(TimeLayout)}
	if ev.OutputPath == "" {
		return p
	}
	raw, err := os.ReadFile(ev.OutputPath)
	if err != nil {
		klog.V(1).InfoS("Alarm image unreadable, forwarding without it", "path", ev.OutputPath, "err", err)
		return p
	}
	enc := base64.StdEncoding.EncodeToString(raw)
	p.ImageData = &enc
	return p
}

func (f *Forwarder) post(ev Event) error {
	body, err := json.Marshal(BuildPayload(ev))
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post alarm")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}
