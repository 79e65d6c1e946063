package progress

// logRing keeps the most recent log lines and numbers every appended line.
type logRing struct {
	lines []LogLine
	next  int
	full  bool
	seq   uint64
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &logRing{lines: make([]LogLine, capacity)}
}

func (r *logRing) append(line LogLine) LogLine {
	r.seq++
	line.Seq = r.seq
	r.lines[r.next] = line
	r.next++
	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}
	return line
}

func (r *logRing) last() (LogLine, bool) {
	if r.seq == 0 {
		return LogLine{}, false
	}
	i := r.next - 1
	if i < 0 {
		i = len(r.lines) - 1
	}
	return r.lines[i], true
}

// since returns retained lines with Seq > seq in order.
func (r *logRing) since(seq uint64) []LogLine {
	var ordered []LogLine
	if r.full {
		ordered = append(ordered, r.lines[r.next:]...)
	}
	ordered = append(ordered, r.lines[:r.next]...)
	out := make([]LogLine, 0, len(ordered))
	for _, l := range ordered {
		if l.Seq > seq {
			out = append(out, l)
		}
	}
	return out
}
