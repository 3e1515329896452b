package executor

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nestor-run/nestor/pkg/utils"
)

type stateTask struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	ContainerID string `json:"container_id,omitempty"`
}

type stateExecutor struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Container string      `json:"container"`
	State     string      `json:"state"`
	Tasks     []stateTask `json:"tasks"`
}

type stateFramework struct {
	ID        string          `json:"id"`
	Executors []stateExecutor `json:"executors"`
}

type stateDocument struct {
	Frameworks []stateFramework `json:"frameworks"`
}

func (e *Executor) stateDocument() stateDocument {
	tasks := []stateTask{}
	for _, task := range e.registry.Tasks() {
		tasks = append(tasks, stateTask{
			ID:          task.ID(),
			State:       string(task.State().WireState()),
			ContainerID: task.ContainerID(),
		})
	}

	return stateDocument{
		Frameworks: []stateFramework{{
			ID: e.link.FrameworkID(),
			Executors: []stateExecutor{{
				ID:        e.config.ExecutorID,
				Type:      "DEFAULT",
				Container: e.config.ParentContainerID,
				State:     string(e.supervisor.State()),
				Tasks:     tasks,
			}},
		}},
	}
}

func NewHttpHandler(executor *Executor, r *echo.Echo) {
	r.GET("/state", func(c echo.Context) error {
		return c.JSON(http.StatusOK, executor.stateDocument())
	})

	r.GET("/state/tasks/:id", func(c echo.Context) error {
		task, err := executor.registry.Get(c.Param("id"))
		if err != nil {
			return c.JSON(utils.HTTPStatus(err), map[string]string{"error": err.Error()})
		}

		return c.JSON(http.StatusOK, stateTask{
			ID:          task.ID(),
			State:       string(task.State().WireState()),
			ContainerID: task.ContainerID(),
		})
	})

	r.GET("/metrics", func(c echo.Context) error {
		var running, terminal int
		for _, task := range executor.registry.Tasks() {
			if task.IsTerminal() {
				terminal++
			} else {
				running++
			}
		}

		metrics := fmt.Sprintln("# TYPE nestor_executor_tasks_active gauge")
		metrics += fmt.Sprintln("# HELP nestor_executor_tasks_active The number of tasks not yet terminal.")
		metrics += fmt.Sprintf("nestor_executor_tasks_active %d\n", running)

		metrics += fmt.Sprintln("# TYPE nestor_executor_tasks_terminal_total counter")
		metrics += fmt.Sprintln("# HELP nestor_executor_tasks_terminal_total The total number of terminal tasks.")
		metrics += fmt.Sprintf("nestor_executor_tasks_terminal_total %d\n", terminal)

		metrics += fmt.Sprintln("# TYPE nestor_executor_updates_unacked gauge")
		metrics += fmt.Sprintln("# HELP nestor_executor_updates_unacked The number of unacknowledged status updates.")
		metrics += fmt.Sprintf("nestor_executor_updates_unacked %d\n", executor.stream.NumUnacked())

		c.String(http.StatusOK, metrics)
		return nil
	})
}
