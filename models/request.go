package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// GenerateRequest is the input to POST /generate-video. Two body shapes are
// accepted: the scene-list form {"scenes": [...]} and the legacy single-scene
// form {"image_url": ..., "audio_url": ..., "subtitle": ...}.
type GenerateRequest struct {
	Scenes []Scene
	Async  bool
}

type sceneWire struct {
	ImageURL string `json:"image_url"`
	AudioURL string `json:"audio_url"`
	Subtitle string `json:"subtitle"`
	Index    *int   `json:"index"`
}

type generateWire struct {
	Scenes []sceneWire `json:"scenes"`
	Async  bool        `json:"async"`

	// Legacy single-scene shape
	ImageURL string `json:"image_url"`
	AudioURL string `json:"audio_url"`
	Subtitle string `json:"subtitle"`
}

// UnmarshalJSON decodes either request shape. Scenes without an explicit
// index take their list position; explicit indices define output order.
func (r *GenerateRequest) UnmarshalJSON(data []byte) error {
	var wire generateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.Async = wire.Async

	if len(wire.Scenes) == 0 && (wire.ImageURL != "" || wire.AudioURL != "") {
		wire.Scenes = []sceneWire{{
			ImageURL: wire.ImageURL,
			AudioURL: wire.AudioURL,
			Subtitle: wire.Subtitle,
		}}
	}

	r.Scenes = make([]Scene, len(wire.Scenes))
	for i, sc := range wire.Scenes {
		idx := i
		if sc.Index != nil {
			idx = *sc.Index
		}
		r.Scenes[i] = Scene{
			ImageURL: sc.ImageURL,
			AudioURL: sc.AudioURL,
			Subtitle: sc.Subtitle,
			Index:    idx,
		}
	}

	// Output order follows scene index, whatever order the list arrived in.
	sort.SliceStable(r.Scenes, func(i, j int) bool {
		return r.Scenes[i].Index < r.Scenes[j].Index
	})

	return nil
}

// Validate checks the request for user-correctable problems.
func (r *GenerateRequest) Validate() error {
	if len(r.Scenes) == 0 {
		return errors.New("at least one scene is required")
	}
	for _, sc := range r.Scenes {
		if sc.ImageURL == "" {
			return fmt.Errorf("scene %d: image_url is required", sc.Index)
		}
		if sc.AudioURL == "" {
			return fmt.Errorf("scene %d: audio_url is required", sc.Index)
		}
	}
	return nil
}

// MergeRequest is the input to POST /merge-videos. Accepts
// {"video_urls": [...]} or a bare JSON array of URLs.
type MergeRequest struct {
	VideoURLs []string
}

func (r *MergeRequest) UnmarshalJSON(data []byte) error {
	var wire struct {
		VideoURLs []string `json:"video_urls"`
	}
	if err := json.Unmarshal(data, &wire); err == nil && wire.VideoURLs != nil {
		r.VideoURLs = wire.VideoURLs
		return nil
	}

	var bare []string
	if err := json.Unmarshal(data, &bare); err == nil {
		r.VideoURLs = bare
		return nil
	}

	return errors.New("expected {\"video_urls\": [...]} or a JSON array of URLs")
}

// Validate checks the request for user-correctable problems.
func (r *MergeRequest) Validate() error {
	if len(r.VideoURLs) < 2 {
		return errors.New("at least two video_urls are required")
	}
	for i, u := range r.VideoURLs {
		if u == "" {
			return fmt.Errorf("video_urls[%d] is empty", i)
		}
	}
	return nil
}
