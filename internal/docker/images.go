package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/moby/moby/client"
)

// PullImage pulls an image by reference, waiting for the pull to complete.
func (c *Client) PullImage(ctx context.Context, refStr string) error {
	resp, err := c.api.ImagePull(ctx, refStr, client.ImagePullOptions{})
	if err != nil {
		return err
	}
	return resp.Wait(ctx)
}

// ImageExists reports whether the image is available locally.
func (c *Client) ImageExists(ctx context.Context, refStr string) bool {
	_, err := c.api.ImageInspect(ctx, refStr)
	return err == nil
}

// RemoveImage removes an image by reference, pruning untagged children.
func (c *Client) RemoveImage(ctx context.Context, id string) error {
	_, err := c.api.ImageRemove(ctx, id, client.ImageRemoveOptions{PruneChildren: true})
	return err
}

// buildMessage is one record of the daemon's streamed build output.
type buildMessage struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// BuildImage builds an image from a tar build context, draining the
// daemon's progress stream. The accumulated stream text is returned even on
// failure so callers can surface build logs.
func (c *Client) BuildImage(ctx context.Context, buildContext io.Reader, tag, dockerfile string) (string, error) {
	resp, err := c.api.ImageBuild(ctx, buildContext, client.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: dockerfile,
		Remove:     true,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out strings.Builder
	dec := json.NewDecoder(resp.Body)
	for {
		var msg buildMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out.String(), fmt.Errorf("decoding build output: %w", err)
		}
		if msg.Stream != "" {
			out.WriteString(msg.Stream)
		}
		if msg.Error != "" {
			detail := msg.ErrorDetail.Message
			if detail == "" {
				detail = msg.Error
			}
			return out.String(), fmt.Errorf("build: %s", detail)
		}
	}
	return out.String(), nil
}

// ImageSummary describes one local image for the system API.
type ImageSummary struct {
	ID       string   `json:"id"`
	RepoTags []string `json:"repo_tags"`
	Size     int64    `json:"size"`
	Created  int64    `json:"created"`
	InUse    bool     `json:"in_use"`
}

// ImagePruneResult reports what an image prune removed.
type ImagePruneResult struct {
	ImagesDeleted  int   `json:"images_deleted"`
	SpaceReclaimed int64 `json:"space_reclaimed"`
}

// ListImages returns all tagged images, flagging those referenced by a
// container.
func (c *Client) ListImages(ctx context.Context) ([]ImageSummary, error) {
	result, err := c.api.ImageList(ctx, client.ImageListOptions{All: false})
	if err != nil {
		return nil, err
	}

	// Stopped containers still pin their image, so the in-use flag works
	// from the full container list.
	containers, err := c.ListAllContainers(ctx)
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool)
	for _, cont := range containers {
		used[cont.ImageID] = true
	}

	summaries := make([]ImageSummary, 0, len(result.Items))
	for _, img := range result.Items {
		summaries = append(summaries, ImageSummary{
			ID:       img.ID,
			RepoTags: img.RepoTags,
			Size:     img.Size,
			Created:  img.Created,
			InUse:    used[img.ID],
		})
	}
	return summaries, nil
}

// PruneImages removes dangling images.
func (c *Client) PruneImages(ctx context.Context) (ImagePruneResult, error) {
	report, err := c.api.ImagePrune(ctx, client.ImagePruneOptions{})
	if err != nil {
		return ImagePruneResult{}, err
	}
	return ImagePruneResult{
		ImagesDeleted:  len(report.Report.ImagesDeleted),
		SpaceReclaimed: int64(report.Report.SpaceReclaimed), //nolint:gosec // space reclaimed won't exceed int64 max
	}, nil
}
