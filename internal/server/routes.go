package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opda-dev/opda/internal/report"
	"github.com/opda-dev/opda/internal/store"
	"github.com/opda-dev/opda/internal/study"
)

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"service": s.cfg.Name,
		"version": version,
	})
}

func (s *Service) handleListStudies(c *gin.Context) {
	studies, err := s.store.ListStudies()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(studies))
	for _, st := range studies {
		count, err := s.store.CountTrials(st.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out = append(out, gin.H{
			"id":         st.ID,
			"name":       st.Name,
			"direction":  st.Direction,
			"trials":     count,
			"created_at": st.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"studies": out})
}

func (s *Service) handleGetStudy(c *gin.Context) {
	st, err := s.lookupStudy(c.Param("id"))
	if err != nil {
		s.renderStudyError(c, err)
		return
	}
	count, err := s.store.CountTrials(st.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         st.ID,
		"name":       st.Name,
		"direction":  st.Direction,
		"trials":     count,
		"created_at": st.CreatedAt,
	})
}

func (s *Service) handleCurve(c *gin.Context) {
	st, err := s.lookupStudy(c.Param("id"))
	if err != nil {
		s.renderStudyError(c, err)
		return
	}

	settings := study.Analysis{Quantile: 0.5, Confidence: 0.8, MaxTrials: 64}
	if err := parseAnalysisQuery(c, &settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rep, err := s.analyzer.Analyze(st.ID, settings)
	if err != nil {
		if errors.Is(err, report.ErrNoTrials) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// lookupStudy accepts either a study id or a study name.
func (s *Service) lookupStudy(key string) (store.Study, error) {
	st, err := s.store.GetStudy(key)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, store.ErrStudyNotFound) {
		return store.Study{}, err
	}
	return s.store.GetStudyByName(key)
}

func (s *Service) renderStudyError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrStudyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "study not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseAnalysisQuery(c *gin.Context, settings *study.Analysis) error {
	if raw, ok := c.GetQuery("quantile"); ok {
		q, err := strconv.ParseFloat(raw, 64)
		if err != nil || q <= 0 || q >= 1 {
			return errors.New("quantile must be a number in (0, 1)")
		}
		settings.Quantile = q
	}
	if raw, ok := c.GetQuery("confidence"); ok {
		conf, err := strconv.ParseFloat(raw, 64)
		if err != nil || conf <= 0 || conf >= 1 {
			return errors.New("confidence must be a number in (0, 1)")
		}
		settings.Confidence = conf
	}
	if raw, ok := c.GetQuery("max_trials"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errors.New("max_trials must be a positive integer")
		}
		settings.MaxTrials = n
	}
	return nil
}
