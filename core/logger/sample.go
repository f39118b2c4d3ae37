package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// debugSampler lets through n of every d calls. A zero ratio lets all
// calls through.
type debugSampler struct {
	ratio atomic.Uint64 // n<<32 | d
	tick  atomic.Uint64
}

func newDebugSampler(n, d int) *debugSampler {
	s := &debugSampler{}
	s.set(n, d)
	return s
}

func (s *debugSampler) set(n, d int) {
	if n <= 0 || d <= 0 {
		s.ratio.Store(0)
		return
	}
	n = min(n, d)
	s.ratio.Store(uint64(n)<<32 | uint64(uint32(d)))
	s.tick.Store(0)
}

func (s *debugSampler) allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	n, d := r>>32, r&0xffffffff
	return s.tick.Add(1)%d < n
}

// parseSample reads logging.debug_sample: "n/d", a bare "d" meaning 1/d,
// "0" or "off" to log everything. Empty or malformed input keeps 1/50.
func parseSample(spec string) (int, int) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return 1, 50
	case "0", "off", "all":
		return 0, 0
	}
	num, den, ok := strings.Cut(spec, "/")
	if !ok {
		num, den = "1", spec
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(num))
	d, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return 1, 50
	}
	return n, d
}
