package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
)

// Build metadata, set from main through SetVersionInfo.
var (
	buildName    = "pixelctl"
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

// BuildInfo is the body of /version.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	Go        string `json:"go_version"`
	Platform  string `json:"platform"`
	Gofulmen  string `json:"gofulmen"`
	Crucible  string `json:"crucible"`

	// Process state of the run the server is attached to.
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	Tasks     []int     `json:"tasks"`
}

// VersionHandler reports build metadata along with how long the run has been
// going and which tasks it draws. limits may be nil.
func VersionHandler(startedAt time.Time, limits LimitsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps := crucible.GetVersion()
		info := BuildInfo{
			Name:      buildName,
			Version:   buildVersion,
			Commit:    buildCommit,
			BuildDate: buildDate,
			Go:        runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			Gofulmen:  deps.Gofulmen,
			Crucible:  deps.Crucible,
			StartedAt: startedAt.UTC(),
			Uptime:    time.Since(startedAt).Round(time.Second).String(),
			Tasks:     []int{},
		}
		if limits != nil {
			for _, task := range limits() {
				info.Tasks = append(info.Tasks, task.Task)
			}
		}
		writeJSON(w, http.StatusOK, info)
	}
}
