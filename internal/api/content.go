package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/abhisek/engage/internal/content"
)

const ndjson = "application/x-ndjson"

var (
	// ErrIncompleteStream is returned when a content stream ends before its
	// final metadata frame.
	ErrIncompleteStream = errors.New("content stream ended before completion")

	// ErrStreamFailed wraps an error frame sent mid-stream.
	ErrStreamFailed = errors.New("content stream failed")
)

// maxFrame caps a single NDJSON line.
const maxFrame = 1 << 20

// FetchContent fetches content in one JSON response.
func (c *Client) FetchContent(ctx context.Context, req content.FetchRequest) (*content.FetchResponse, error) {
	var out content.FetchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/content", req, &out); err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}
	out.Sections = content.Dedupe(out.Sections)
	content.SortByOrdinal(out.Sections)
	return &out, nil
}

// StreamContent fetches content as a stream of frames. onFrame, if set, is
// called for every frame in arrival order, so callers can show progress
// and render sections as they land. A server that ignores the streaming
// Accept header and replies with plain JSON is handled too: onFrame then
// sees one final frame per section followed by the completion frame.
func (c *Client) StreamContent(ctx context.Context, req content.FetchRequest, onFrame func(content.Frame)) (*content.FetchResponse, error) {
	if onFrame == nil {
		onFrame = func(content.Frame) {}
	}
	if c.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.streamTimeout)
		defer cancel()
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/content", req, ndjson+", application/json")
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream content: %w", err)
	}
	defer res.Body.Close()
	if err := checkStatus(res); err != nil {
		return nil, fmt.Errorf("stream content: %w", err)
	}

	mt, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if mt != ndjson {
		var out content.FetchResponse
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		out.Sections = content.Dedupe(out.Sections)
		content.SortByOrdinal(out.Sections)
		for i := range out.Sections {
			onFrame(content.Frame{Progress: (i + 1) * 99 / len(out.Sections), Section: &out.Sections[i]})
		}
		meta := out.Metadata
		onFrame(content.Frame{Progress: 100, Metadata: &meta, InstructionalPlan: out.InstructionalPlan})
		return &out, nil
	}

	var (
		out  content.FetchResponse
		done bool
		last int
	)
	sc := bufio.NewScanner(res.Body)
	sc.Buffer(make([]byte, 0, 64<<10), maxFrame)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var f content.Frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return nil, fmt.Errorf("decode content frame: %w", err)
		}
		if f.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrStreamFailed, f.Error)
		}
		// Progress never moves backwards for the caller.
		if f.Progress < last {
			f.Progress = last
		}
		if f.Progress > 100 {
			f.Progress = 100
		}
		last = f.Progress

		if f.Section != nil {
			out.Sections = append(out.Sections, *f.Section)
		}
		if f.Metadata != nil {
			out.Metadata = *f.Metadata
			out.InstructionalPlan = f.InstructionalPlan
			f.Progress = 100
			done = true
		}
		onFrame(f)
		if done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read content stream: %w", err)
	}
	if !done {
		return nil, ErrIncompleteStream
	}
	out.Sections = content.Dedupe(out.Sections)
	content.SortByOrdinal(out.Sections)
	c.log.Debug("content streamed", "sections", len(out.Sections), "interaction_id", out.Metadata.InteractionID)
	return &out, nil
}
