package pyload

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pyloadwatch/internal/domain"
)

// Result describes what Normalize made of a listing payload, beyond the
// tasks themselves. SummaryOnly flags the status-summary response shape that
// carries no task rows; Recognized distinguishes "the payload said empty"
// from "nothing in the payload looked like a task" so callers can at least
// log the latter instead of silently treating a server error as an empty
// queue.
type Result struct {
	Recognized  bool
	SummaryOnly bool
	ActiveCount int
}

// Normalize converts a listing payload of unknown shape into tasks. Server
// versions answer the same endpoint with flat arrays, package trees with
// nested links, wrapper objects holding packages/links/files arrays, or a
// single bare object; all recognized shapes contribute tasks, and a
// malformed individual item is skipped rather than failing the batch. Every
// task produced has every field populated.
func Normalize(data any) ([]domain.Task, Result) {
	tasks := []domain.Task{}

	switch payload := data.(type) {
	case []any:
		recognized := false
		for i, entry := range payload {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if links, ok := item["links"].([]any); ok {
				// Package tree: one task per nested link, inheriting the
				// package's name and added-time as fallbacks.
				tasks = append(tasks, flattenPackage(item, links, i)...)
				recognized = true
				continue
			}
			if task, ok := mapItem(item, syntheticID("item", i)); ok {
				tasks = append(tasks, task)
				recognized = true
			}
		}
		return tasks, Result{Recognized: recognized}

	case map[string]any:
		if summary, active := isStatusSummary(payload); summary {
			return tasks, Result{Recognized: true, SummaryOnly: true, ActiveCount: active}
		}

		recognized := false
		if arr, ok := payload["downloads"].([]any); ok {
			tasks = append(tasks, mapArray(arr, "download", domain.Status(""))...)
			recognized = true
		}
		if arr, ok := payload["queue"].([]any); ok {
			tasks = append(tasks, mapArray(arr, "queue", domain.StatusQueued)...)
			recognized = true
		}
		if arr, ok := payload["collector"].([]any); ok {
			collected := mapArray(arr, "collector", domain.StatusFinished)
			for i := range collected {
				collected[i].Percent = 100
				collected[i].Speed = 0
				collected[i].ETA = 0
			}
			tasks = append(tasks, collected...)
			recognized = true
		}
		if arr, ok := payload["packages"].([]any); ok {
			tasks = append(tasks, mapArray(arr, "pkg", domain.Status(""))...)
			recognized = true
		}
		if arr, ok := payload["links"].([]any); ok {
			tasks = append(tasks, mapArray(arr, "link", domain.Status(""))...)
			recognized = true
		}
		if arr, ok := payload["files"].([]any); ok {
			tasks = append(tasks, mapArray(arr, "file", domain.Status(""))...)
			recognized = true
		}

		// Single bare object: a fallback of last resort, only when no
		// wrapping array produced anything.
		if !recognized && len(tasks) == 0 {
			if _, hasID := payload["id"]; hasID {
				if task, ok := mapItem(payload, "pkg-direct"); ok {
					return []domain.Task{task}, Result{Recognized: true}
				}
			}
		}
		return tasks, Result{Recognized: recognized}
	}

	return tasks, Result{}
}

// isStatusSummary detects the status-summary response: a shallow object with
// a total counter and no task data at all. It reports the claimed active
// count so the caller can chase the queue listing when the summary says
// something is downloading.
func isStatusSummary(payload map[string]any) (bool, int) {
	if _, ok := payload["total"]; !ok {
		return false, 0
	}
	if len(payload) > 5 {
		return false, 0
	}
	for _, key := range []string{"downloads", "queue", "collector", "packages", "links", "files"} {
		if _, ok := payload[key]; ok {
			return false, 0
		}
	}
	return true, int(asFloat(payload["active"]))
}

// flattenPackage builds one task per link in a package, deriving link status
// from the three-way classification older servers use: a zero status code or
// "finished" message means done, "queued" means queued, a failed marker or
// error field means failed, anything else passes through.
func flattenPackage(pkg map[string]any, links []any, pkgIndex int) []domain.Task {
	tasks := make([]domain.Task, 0, len(links))
	pkgName := pickString(pkg, "name")
	pkgAdded := pickFloat(pkg, "added")

	for linkIndex, entry := range links {
		link, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		statusMsg := pickString(link, "statusmsg")
		_, hasCode := link["status"]
		completed := (hasCode && asFloat(link["status"]) == 0) || statusMsg == "finished"
		failed := statusMsg == "failed" || pickString(link, "error") != ""

		var status domain.Status
		switch {
		case completed:
			status = domain.StatusFinished
		case statusMsg == "queued":
			status = domain.StatusQueued
		case failed:
			status = domain.StatusFailed
		case statusMsg != "":
			status = domain.Status(statusMsg)
		default:
			status = domain.StatusQueued
		}

		percent := pickFloat(link, "percent")
		if completed {
			percent = 100
		}

		id := pickString(link, "fid", "packageID")
		if id == "" {
			id = fmt.Sprintf("pkg-%d-link-%d", pkgIndex, linkIndex)
		}
		name := pickString(link, "name")
		if name == "" {
			name = pkgName
		}
		if name == "" {
			name = "Unknown"
		}
		added := pkgAdded
		if added == 0 {
			added = float64(time.Now().Unix())
		}

		size := int64(pickFloat(link, "size"))
		tasks = append(tasks, domain.Task{
			ID:      id,
			Name:    name,
			Status:  status,
			URL:     pickString(link, "url"),
			AddedAt: int64(added),
			Percent: percent,
			Size:    size,
			Loaded:  int64(float64(size) * percent / 100),
			Speed:   int64(pickFloat(link, "speed")),
		})
	}
	return tasks
}

// mapArray maps the elements of one wrapper array, skipping malformed
// entries. forcedStatus overrides per-item status classification when the
// array itself implies one (queue entries are queued, collector entries are
// finished).
func mapArray(arr []any, idPrefix string, forcedStatus domain.Status) []domain.Task {
	tasks := make([]domain.Task, 0, len(arr))
	for i, entry := range arr {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		task, ok := mapItem(item, syntheticID(idPrefix, i))
		if !ok {
			continue
		}
		if forcedStatus != "" {
			task.Status = forcedStatus
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// mapItem converts one raw listing item into a task using the field-fallback
// chains the various server versions require. fallbackID is the
// deterministic synthetic id used when the item carries none.
func mapItem(item map[string]any, fallbackID string) (domain.Task, bool) {
	if item == nil {
		return domain.Task{}, false
	}

	id := pickString(item, "id", "fid")
	if id == "" {
		id = fallbackID
	}

	name := pickString(item, "name", "packageName", "filename")
	if name == "" {
		name = "Unknown"
	}

	status := mapStatus(firstPresent(item, "status", "statusmsg"))

	percent := pickFloat(item, "percent", "progress", "completion")
	if status == domain.StatusFinished || status == domain.StatusComplete {
		percent = 100
	}

	size := int64(pickFloat(item, "size", "total_size", "filesize"))

	// Bytes loaded: prefer the remaining-bytes field when present, fall back
	// to deriving from size and percent.
	var loaded int64
	if bleft, ok := item["bleft"]; ok {
		loaded = size - int64(asFloat(bleft))
		if loaded < 0 {
			loaded = 0
		}
	} else {
		loaded = int64(float64(size) * percent / 100)
	}

	added := pickFloat(item, "added", "addedTime")
	if added == 0 {
		added = float64(time.Now().Unix())
	}

	return domain.Task{
		ID:      id,
		Name:    name,
		Status:  status,
		URL:     pickString(item, "url", "host", "link"),
		AddedAt: int64(added),
		Percent: percent,
		Size:    size,
		Loaded:  loaded,
		Speed:   int64(pickFloat(item, "speed", "download_speed", "downloadSpeed")),
		ETA:     int64(pickFloat(item, "eta", "estimated_time")),
	}, true
}

// numericStatuses maps the known server status codes. Unknown codes become
// an opaque "status-<code>" string rather than being dropped.
var numericStatuses = map[int]domain.Status{
	1:  domain.StatusWaiting,
	2:  domain.StatusWaiting,
	3:  domain.StatusWaiting,
	7:  domain.StatusPaused,
	9:  domain.StatusFinished,
	10: domain.StatusFinished,
	11: domain.StatusFailed,
	12: domain.StatusActive, // downloading
	13: domain.StatusActive, // processing
}

// mapStatus classifies a raw status value, numeric or string.
func mapStatus(raw any) domain.Status {
	switch v := raw.(type) {
	case float64:
		if status, ok := numericStatuses[int(v)]; ok {
			return status
		}
		return domain.Status(fmt.Sprintf("status-%d", int(v)))
	case string:
		return mapStatusString(v)
	case nil:
		return domain.StatusQueued
	default:
		return domain.Status(fmt.Sprintf("%v", v))
	}
}

// mapStatusString matches a status string case-insensitively against the
// known vocabulary, in priority order. No match passes the raw string
// through unchanged.
func mapStatusString(s string) domain.Status {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "queue"):
		return domain.StatusQueued
	case strings.Contains(lower, "active"), strings.Contains(lower, "download"):
		return domain.StatusActive
	case strings.Contains(lower, "wait"):
		return domain.StatusWaiting
	case strings.Contains(lower, "pause"):
		return domain.StatusPaused
	case strings.Contains(lower, "finish"):
		return domain.StatusFinished
	case strings.Contains(lower, "complete"):
		return domain.StatusComplete
	case strings.Contains(lower, "fail"), strings.Contains(lower, "error"):
		return domain.StatusFailed
	default:
		return domain.Status(s)
	}
}

// syntheticID derives a deterministic id from listing position, so two runs
// over identical input agree.
func syntheticID(prefix string, index int) string {
	return fmt.Sprintf("%s-%d", prefix, index)
}

// firstPresent returns the first key that exists in the item, whatever its
// type.
func firstPresent(item map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := item[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// pickString returns the first non-empty string-convertible value among keys.
func pickString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := asString(item[key]); s != "" {
			return s
		}
	}
	return ""
}

// pickFloat returns the first nonzero numeric value among keys.
func pickFloat(item map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if f := asFloat(item[key]); f != 0 {
			return f
		}
	}
	return 0
}

// asString coerces scalar JSON values to a display string. Integral floats
// lose the ".0" so numeric ids round-trip cleanly.
func asString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		if value == float64(int64(value)) {
			return strconv.FormatInt(int64(value), 10)
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

// asFloat coerces scalar JSON values to a number, defaulting to 0.
func asFloat(v any) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if value {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// asID extracts a package/file id from an add-package response, which may be
// a bare number, a quoted string or absent.
func asID(v any) string {
	return asString(v)
}
