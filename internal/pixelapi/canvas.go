package pixelapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/pixelctl/pixelctl/internal/core"
	"github.com/pixelctl/pixelctl/internal/metrics"
)

// Canvas API endpoints, relative to the base URL.
const (
	EndpointGetSize   = "get_size"
	EndpointGetPixels = "get_pixels"
	EndpointGetPixel  = "get_pixel"
	EndpointSetPixel  = "set_pixel"
)

type sizeResponse struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type pixelResponse struct {
	RGB string `json:"rgb"`
}

type setPixelRequest struct {
	X   int    `json:"x"`
	Y   int    `json:"y"`
	RGB string `json:"rgb"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// GetDimensions fetches the canvas size and caches it on the client.
func (c *Client) GetDimensions(ctx context.Context) (core.Dimensions, error) {
	endpoint, err := c.ResolveEndpoint(EndpointGetSize)
	if err != nil {
		return core.Dimensions{}, err
	}

	var payload sizeResponse
	if err := c.ExecuteJSON(ctx, Request{Method: http.MethodGet, URL: endpoint}, &payload); err != nil {
		return core.Dimensions{}, err
	}
	if payload.Width <= 0 || payload.Height <= 0 {
		return core.Dimensions{}, fmt.Errorf("canvas reported invalid size %dx%d", payload.Width, payload.Height)
	}

	size := core.Dimensions{Width: payload.Width, Height: payload.Height}
	c.sizeMu.Lock()
	c.size = &size
	c.sizeMu.Unlock()
	return size, nil
}

// Size returns the cached canvas size, fetching it on first use.
func (c *Client) Size(ctx context.Context) (core.Dimensions, error) {
	c.sizeMu.Lock()
	cached := c.size
	c.sizeMu.Unlock()
	if cached != nil {
		return *cached, nil
	}
	return c.GetDimensions(ctx)
}

// GetCanvas downloads the whole canvas. The limiter wait happens after the
// download so the returned pixels are as fresh as possible.
func (c *Client) GetCanvas(ctx context.Context, showProgress bool) (*core.Canvas, error) {
	size, err := c.Size(ctx)
	if err != nil {
		return nil, err
	}

	endpoint, err := c.ResolveEndpoint(EndpointGetPixels)
	if err != nil {
		return nil, err
	}

	data, err := c.ExecuteRaw(ctx, Request{
		Method:         http.MethodGet,
		URL:            endpoint,
		RatelimitAfter: true,
		ShowProgress:   showProgress,
	})
	if err != nil {
		return nil, err
	}

	return core.NewCanvas(size, data)
}

// GetPixel reads a single pixel.
func (c *Client) GetPixel(ctx context.Context, x, y int, showProgress bool) (core.Color, error) {
	endpoint, err := c.ResolveEndpoint(EndpointGetPixel)
	if err != nil {
		return core.Color{}, err
	}

	var payload pixelResponse
	err = c.ExecuteJSON(ctx, Request{
		Method: http.MethodGet,
		URL:    endpoint,
		Params: url.Values{
			"x": []string{strconv.Itoa(x)},
			"y": []string{strconv.Itoa(y)},
		},
		ShowProgress: showProgress,
	}, &payload)
	if err != nil {
		return core.Color{}, err
	}

	return core.ParseHex(payload.RGB)
}

// PutPixel sets the pixel at (x, y). colour accepts anything core.ParseColor
// does. It returns the server's confirmation message.
func (c *Client) PutPixel(ctx context.Context, x, y int, colour any, showProgress bool) (string, error) {
	parsed, err := core.ParseColor(colour)
	if err != nil {
		return "", err
	}

	endpoint, err := c.ResolveEndpoint(EndpointSetPixel)
	if err != nil {
		return "", err
	}

	var payload messageResponse
	err = c.ExecuteJSON(ctx, Request{
		Method:       http.MethodPost,
		URL:          endpoint,
		Data:         setPixelRequest{X: x, Y: y, RGB: parsed.APIString()},
		ShowProgress: showProgress,
	}, &payload)
	if err != nil {
		metrics.RecordPlacement("failed")
		return "", err
	}

	metrics.RecordPlacement("placed")
	c.info("Pixel placed",
		zap.Int("x", x),
		zap.Int("y", y),
		zap.String("color", parsed.Hex()),
		zap.String("message", payload.Message))
	return payload.Message, nil
}
