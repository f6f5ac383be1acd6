// Package rest exposes the denoiser over HTTP.
package rest

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pcadenoise/internal/logging"
	"pcadenoise/internal/models"
	"pcadenoise/pkg/config"
	"pcadenoise/pkg/denoise"
	"pcadenoise/pkg/imageio"
	"pcadenoise/pkg/patch"
)

// Serve listens on the configured address until the server fails
func Serve(cfg *config.Config) error {
	r := NewRouter(cfg)
	logging.Printf("Listening on %s\n", cfg.Server.Addr)
	return r.Run(cfg.Server.Addr)
}

// NewRouter builds the /api/v1 routes. Requests start from the parameters
// in cfg and may override them per call.
func NewRouter(cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s := &server{cfg: cfg}

	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/config", s.getConfig)
			v1.POST("/denoise", s.postDenoise)
		}
	}
	return r
}

type server struct {
	cfg *config.Config
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func (s *server) getConfig(c *gin.Context) {
	c.YAML(http.StatusOK, s.cfg)
}

// denoiseArgs are the optional form fields of a denoise request
type denoiseArgs struct {
	Patch     *int     `form:"patch"`
	Overlap   *int     `form:"overlap"`
	Global    *bool    `form:"global"`
	Tiles     *int     `form:"tiles"`
	Threshold string   `form:"threshold"`
	Shrink    string   `form:"shrink"`
	Sigma     *float64 `form:"sigma"`
	Blend     string   `form:"blend"`
	Grayscale string   `form:"grayscale"`
}

// apply overrides the configured parameters with the request fields
func (a *denoiseArgs) apply(params *denoise.Params) error {
	if a.Patch != nil {
		params.PatchSide = *a.Patch
	}
	if a.Overlap != nil {
		params.MinOverlap = *a.Overlap
	}
	if a.Global != nil {
		params.Global = *a.Global
	}
	if a.Tiles != nil {
		params.TileCount = *a.Tiles
	}
	if a.Threshold != "" {
		params.Threshold = a.Threshold
	}
	if a.Shrink != "" {
		params.Shrink = a.Shrink
	}
	if a.Sigma != nil {
		params.Sigma = *a.Sigma
	}
	if a.Blend != "" {
		blend, err := patch.ParseBlend(a.Blend)
		if err != nil {
			return err
		}
		params.Blend = blend
	}
	return nil
}

func (s *server) postDenoise(c *gin.Context) {
	var args denoiseArgs
	if err := c.ShouldBind(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params, err := s.cfg.Params()
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := args.apply(params); err != nil {
		abortWithError(c, err)
		return
	}
	// intermediary results are a CLI feature
	params.SaveIntermediaryResults = false

	grayscaleName := s.cfg.Output.Grayscale
	if args.Grayscale != "" {
		grayscaleName = args.Grayscale
	}
	mode, err := imageio.ParseGrayscale(grayscaleName)
	if err != nil {
		abortWithError(c, err)
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing image: %s", err.Error())})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer f.Close()

	grid, format, err := imageio.DecodeLimited(f, mode, s.cfg.Server.MaxPixels)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logging.Debugf("Denoising %s (%s, %dx%d), patch %d, global %v\n",
		fileHeader.Filename, format, grid.Width, grid.Height, params.PatchSide, params.Global)

	d := denoise.NewDenoiser(params)
	out, err := d.Denoise(c.Request.Context(), grid)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := imageio.Encode(&buf, out, "png"); err != nil {
		abortWithError(c, err)
		return
	}

	if reports := d.Reports(); len(reports) > 0 {
		c.Header("X-Denoise-Regions", strconv.Itoa(len(reports)))
		c.Header("X-Denoise-Sigma", strconv.FormatFloat(reports[0].Sigma, 'f', 4, 64))
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidParameter),
		errors.Is(err, models.ErrPatchTooLarge),
		errors.Is(err, models.ErrUnsupportedPolicy):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientSamples):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Printf("Error: %v\n", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
