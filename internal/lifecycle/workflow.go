package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"stackctl/internal/logging"
)

// WorkflowDirs are the Airflow directories mounted into the workflow containers.
var WorkflowDirs = []string{"dags", "logs", "plugins", "config"}

// defaultAirflowUID is used where the process has no POSIX uid.
const defaultAirflowUID = 50000

// PrepareWorkflow creates the Airflow directories under root and returns the
// AIRFLOW_UID=<uid> pair the workflow containers run as.
func PrepareWorkflow(root string) (string, error) {
	for _, d := range WorkflowDirs {
		dir := filepath.Join(root, "airflow", d)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	uid := os.Getuid()
	if uid < 0 {
		uid = defaultAirflowUID
	}
	logging.LifecycleDebug("workflow directories ready, AIRFLOW_UID=%d", uid)
	return "AIRFLOW_UID=" + strconv.Itoa(uid), nil
}
