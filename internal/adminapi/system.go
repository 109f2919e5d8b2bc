package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/webserver"
	"github.com/dhanvantari/pharmaauth/pkg/metrics"
	"github.com/labstack/echo/v4"
)

func registerSystemRoutes() {
	webserver.ApiGET("/system/chain", chainStatus)
	webserver.ApiGET("/system/metrics/:name", queryMetric)
	webserver.ApiGET("/system/jobs", listJobs)
}

// listJobs lists the scheduled background jobs
func listJobs(c echo.Context) error {
	if !currentActor(c).Authenticated() {
		return failWith(c, domain.ErrUnauthenticated)
	}
	sched := GetAppContext(c).Scheduler()
	if sched == nil {
		return ok(c, []interface{}{})
	}
	entries := sched.Entries()
	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":   int(e.ID),
			"next": e.Next,
			"prev": e.Prev,
		})
	}
	return ok(c, jobs)
}

func chainStatus(c echo.Context) error {
	chainID, endpoint, err := chainAvailable(c)
	if err != nil {
		return ok(c, map[string]interface{}{"available": false})
	}
	return ok(c, map[string]interface{}{
		"available": true,
		"chain_id":  chainID,
		"endpoint":  endpoint,
	})
}

// queryMetric returns samples of one counter or gauge, ?minutes= defaults to 60
func queryMetric(c echo.Context) error {
	if !currentActor(c).Authenticated() {
		return failWith(c, domain.ErrUnauthenticated)
	}
	minutes, _ := strconv.Atoi(c.QueryParam("minutes"))
	if minutes <= 0 || minutes > 24*60 {
		minutes = 60
	}
	name := c.Param("name")
	end := time.Now().Add(time.Second)
	points, err := metrics.Query(name, end.Add(-time.Duration(minutes)*time.Minute), end)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "METRICS_ERROR", "Failed to query metrics", err.Error())
	}
	return ok(c, map[string]interface{}{
		"name":    name,
		"current": metrics.GetCounter(name),
		"points":  points,
	})
}
