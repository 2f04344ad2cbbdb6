package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/clinrota/rota-api/internal/middleware"
	"github.com/clinrota/rota-api/internal/service"
)

// Services bundles everything the router wires behind the API prefix.
type Services struct {
	People      *service.PersonService
	Blocks      *service.BlockService
	Rotations   *service.RotationService
	Absences    *service.AbsenceService
	Assignments *service.AssignmentService
	Schedule    *service.ScheduleService
	Swaps       *service.SwapService
	Compliance  *service.ComplianceService
	Conflicts   *service.ConflictService
	Constraints *service.ConstraintService
	Metrics     *service.MetricsService
}

// RegisterRoutes mounts every API endpoint under the prefix. All routes
// require an actor identity; the metrics endpoint is mounted separately.
func RegisterRoutes(r *gin.Engine, prefix, tokenSecret, actorHeader string, svcs Services) {
	api := r.Group(prefix)
	api.Use(middleware.Actor(tokenSecret, actorHeader))
	api.Use(middleware.Metrics(svcs.Metrics))

	people := NewPersonHandler(svcs.People)
	api.GET("/people", people.List)
	api.POST("/people", people.Create)
	api.GET("/people/:id", people.Get)
	api.PUT("/people/:id", people.Update)
	api.DELETE("/people/:id", people.Archive)

	absences := NewAbsenceHandler(svcs.Absences)
	api.GET("/people/:id/absences", absences.ListForPerson)
	api.POST("/absences", absences.Create)
	api.PUT("/absences/:id", absences.Update)
	api.DELETE("/absences/:id", absences.Delete)

	blocks := NewBlockHandler(svcs.Blocks)
	api.GET("/blocks", blocks.List)
	api.POST("/blocks/generate", blocks.GenerateYear)
	api.GET("/blocks/:id", blocks.Get)

	rotations := NewRotationHandler(svcs.Rotations)
	api.GET("/rotations", rotations.List)
	api.POST("/rotations", rotations.Create)
	api.GET("/rotations/:id", rotations.Get)
	api.PUT("/rotations/:id", rotations.Update)
	api.DELETE("/rotations/:id", rotations.Delete)

	assignments := NewAssignmentHandler(svcs.Assignments)
	api.GET("/assignments", assignments.List)
	api.POST("/assignments", assignments.Create)
	api.POST("/assignments/bulk", assignments.BulkCreate)
	api.PUT("/assignments/bulk", assignments.BulkUpdate)
	api.DELETE("/assignments/bulk", assignments.BulkDelete)
	api.GET("/assignments/:id", assignments.Get)
	api.PUT("/assignments/:id", assignments.Update)
	api.DELETE("/assignments/:id", assignments.Delete)
	api.PUT("/assignments/:id/lock", assignments.SetLocked)

	schedule := NewScheduleHandler(svcs.Schedule)
	api.POST("/schedule/solve", schedule.Solve)

	swaps := NewSwapHandler(svcs.Swaps)
	api.GET("/swaps", swaps.List)
	api.POST("/swaps", swaps.Propose)
	api.GET("/swaps/:id", swaps.Get)
	api.POST("/swaps/:id/validate", swaps.Validate)
	api.POST("/swaps/:id/execute", swaps.Execute)
	api.POST("/swaps/:id/rollback", swaps.Rollback)
	api.GET("/assignments/:id/swap-candidates", swaps.Match)

	compliance := NewComplianceHandler(svcs.Compliance)
	api.GET("/compliance/people/:id", compliance.ValidatePerson)
	api.GET("/compliance/population", compliance.ValidatePopulation)
	api.POST("/compliance/sweep", compliance.Sweep)
	api.POST("/compliance/acknowledgments", compliance.Acknowledge)

	conflicts := NewConflictHandler(svcs.Conflicts)
	api.GET("/conflicts", conflicts.Detect)

	constraints := NewConstraintHandler(svcs.Constraints)
	api.GET("/constraints", constraints.List)
	api.POST("/constraints", constraints.Create)
	api.GET("/constraints/:name", constraints.Get)
	api.PUT("/constraints/:name", constraints.Update)
	api.PUT("/constraints/:name/enabled", constraints.SetEnabled)
}
