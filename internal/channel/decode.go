package channel

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

// aliases maps legacy wire names onto current event kinds.
var aliases = map[string]progress.Kind{
	"search_started":  progress.KindJobStarted,
	"task_change":     progress.KindTaskChanged,
	"search_complete": progress.KindJobComplete,
	"search_stopped":  progress.KindJobStopped,
	"search_failed":   progress.KindJobFailed,
}

// fields reads typed values out of frame data and collects a diagnostic for
// every field that is present but unusable.
type fields struct {
	data  map[string]any
	diags []string
}

// ToEvent converts a decoded frame into an aggregator event stamped with ts.
// Unknown names become progress.Unknown; it never fails.
func ToEvent(ts time.Time, f Frame) progress.Event {
	r := &fields{data: f.Data}
	kind := progress.Kind(f.Name)
	if alias, ok := aliases[f.Name]; ok {
		kind = alias
	}

	var p progress.Payload
	switch kind {
	case progress.KindJobStarted:
		p = progress.JobStarted{
			TotalTasks: r.intField("totalTasks", "total_tasks", "tasks_count"),
			Periods:    r.stringsField("periods"),
		}
	case progress.KindTaskChanged:
		p = progress.TaskChanged{
			CurrentTaskIndex: r.intField("currentTaskIndex", "current_task"),
			TotalTasks:       r.intField("totalTasks", "total_tasks"),
			Period:           r.stringField("period"),
		}
	case progress.KindProgress:
		p = progress.Progress{
			ItemsSaved: r.intField("itemsSaved", "saved"),
			ItemsTotal: r.intField("itemsTotal", "total"),
			Percent:    r.intField("percent", "value"),
			Period:     r.stringField("period"),
		}
	case progress.KindPeriodUpdate:
		p = progress.PeriodUpdate{Period: r.stringField("period")}
	case progress.KindResultsCount:
		p = progress.ResultsCount{
			Total:       r.intField("total"),
			MaxArticles: r.intField("maxArticles", "max_articles"),
			Period:      r.stringField("period"),
		}
	case progress.KindJobComplete:
		p = progress.JobComplete{Message: r.stringField("message")}
	case progress.KindJobStopped:
		p = progress.JobStopped{Message: r.stringField("message")}
	case progress.KindJobFailed:
		msg := r.stringField("message")
		if msg == nil {
			msg = r.stringField("error")
		}
		p = progress.JobFailed{Message: msg}
	case progress.KindLogMessage:
		lm := progress.LogMessage{Message: r.stringField("message")}
		if level := r.stringField("level"); level != nil {
			if l, ok := progress.ParseLogLevel(*level); ok {
				lm.Level = &l
			} else {
				r.diags = append(r.diags, fmt.Sprintf("unknown log level %q", *level))
			}
		}
		p = lm
	case progress.KindOverallProgress:
		p = progress.OverallProgress{
			Value:       r.intField("value"),
			CurrentTask: r.intField("currentTask", "current_task"),
			TotalTasks:  r.intField("totalTasks", "total_tasks"),
		}
	case progress.KindArticleSaved:
		p = progress.ArticleSaved{Path: r.stringField("path"), Period: r.stringField("period")}
	case progress.KindTotalArticles:
		p = progress.TotalArticles{Total: r.intField("total")}
	case progress.KindYearProgress:
		p = progress.YearProgress{
			CurrentYear: r.intField("currentYear", "current_year"),
			TotalYears:  r.intField("totalYears", "total_years"),
			Percent:     r.intField("percentage", "percent"),
		}
	case progress.KindSearchScope:
		p = progress.SearchScope{TotalYears: r.intField("totalYears", "total_years")}
	default:
		p = progress.Unknown{Name: f.Name}
	}
	return progress.Event{TS: ts, Payload: p, Diagnostics: r.diags}
}

// lookup returns the first present key.
func (r *fields) lookup(keys ...string) (string, any, bool) {
	for _, k := range keys {
		if v, ok := r.data[k]; ok && v != nil {
			return k, v, true
		}
	}
	return "", nil, false
}

func (r *fields) intField(keys ...string) *int {
	key, v, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	n, ok := toInt(v)
	if !ok {
		r.diags = append(r.diags, fmt.Sprintf("%s: expected an integer, got %T %v", key, v, v))
		return nil
	}
	return &n
}

func (r *fields) stringField(keys ...string) *string {
	key, v, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		r.diags = append(r.diags, fmt.Sprintf("%s: expected a string, got %T", key, v))
		return nil
	}
	return &s
}

func (r *fields) stringsField(keys ...string) []string {
	key, v, ok := r.lookup(keys...)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		r.diags = append(r.diags, fmt.Sprintf("%s: expected a list, got %T", key, v))
		return nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			r.diags = append(r.diags, fmt.Sprintf("%s[%d]: expected a period label, got %v", key, i, item))
			continue
		}
		out = append(out, s)
	}
	return out
}

// toInt accepts every numeric representation the two codecs produce.
// Fractional values are truncated toward zero.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int64ToInt(i)
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case float64:
		return floatToInt(n)
	case float32:
		return floatToInt(float64(n))
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int64ToInt(n)
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func int64ToInt(i int64) (int, bool) {
	if i > math.MaxInt32 || i < math.MinInt32 {
		return 0, false
	}
	return int(i), true
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
