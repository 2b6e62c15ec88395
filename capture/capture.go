// Package capture grabs single frames from camera streams.
package capture

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/timeutil"
)

// DefaultTimeout bounds one capture attempt.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned when a stream does not deliver a frame in time.
var ErrTimeout = errors.New("capture timed out")

// ErrBusy is returned while an abandoned read of the same stream is still
// blocked in the native open or read.
var ErrBusy = errors.New("previous capture still running")

// StreamURL builds protocol://user:pass@ip:port/path. Credentials are
// escaped and omitted when the user is empty; a zero port is omitted.
func StreamURL(protocol, user, pass, ip string, port int, path string) string {
	u := url.URL{Scheme: protocol, Host: ip, Path: "/" + trimSlash(path)}
	if port > 0 {
		u.Host = net.JoinHostPort(ip, strconv.Itoa(port))
	}
	if user != "" {
		u.User = url.UserPassword(user, pass)
	}
	if path == "" {
		u.Path = ""
	}
	return u.String()
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}

// OpenCVSource opens the stream on every call, reads one frame and releases
// the stream. Frames between samples are never decoded. One source may serve
// many sessions.
type OpenCVSource struct {
	// Timeout bounds each attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	Clock   timeutil.Clock
	// Read grabs one frame. Nil reads through OpenCV.
	Read func(streamURL string) (*detector.Frame, error)

	nextID atomic.Int64

	mu       sync.Mutex
	inflight map[string]struct{}
}

type grab struct {
	frame *detector.Frame
	err   error
}

// Capture implements the session frame source. A stream that opens but
// yields an empty frame returns nil, nil.
func (s *OpenCVSource) Capture(ctx context.Context, streamURL string) (*detector.Frame, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	readFn := s.Read
	if readFn == nil {
		readFn = read
	}

	// At most one native read per stream; a hung camera must not pile up
	// blocked opens across iterations.
	s.mu.Lock()
	if _, busy := s.inflight[streamURL]; busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.inflight == nil {
		s.inflight = make(map[string]struct{})
	}
	s.inflight[streamURL] = struct{}{}
	s.mu.Unlock()

	ch := make(chan grab, 1)
	go func() {
		f, err := readFn(streamURL)
		s.mu.Lock()
		delete(s.inflight, streamURL)
		s.mu.Unlock()
		ch <- grab{frame: f, err: err}
	}()

	select {
	case g := <-ch:
		if g.err != nil || g.frame == nil {
			return nil, g.err
		}
		g.frame.ID = s.nextID.Add(1)
		g.frame.Timestamp = clock.Now()
		return g.frame, nil
	case <-clock.After(timeout):
		klog.V(2).InfoS("Abandoning slow capture", "timeout", timeout)
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func read(streamURL string) (*detector.Frame, error) {
	vc, err := gocv.OpenVideoCapture(streamURL)
	if err != nil {
		return nil, errors.Wrap(err, "open stream")
	}
	defer vc.Close()

	mat := gocv.NewMat()
	defer mat.Close()
	if ok := vc.Read(&mat); !ok {
		return nil, errors.New("read stream")
	}
	if mat.Empty() {
		return nil, nil
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	return &detector.Frame{Image: img}, nil
}
