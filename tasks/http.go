package tasks

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	auth "github.com/goliatone/go-taskauth"
)

type Controller struct {
	repo         *Repository
	gate         *auth.OwnershipGate
	errorHandler fiber.ErrorHandler
}

// NewController serves tasks from repo. errorHandler renders failures,
// usually the auth problem handler.
func NewController(repo *Repository, errorHandler fiber.ErrorHandler) *Controller {
	return &Controller{
		repo:         repo,
		gate:         auth.NewOwnershipGate(repo),
		errorHandler: errorHandler,
	}
}

// RegisterRoutes mounts the task routes on r, which must sit behind the
// authentication gate.
func (t *Controller) RegisterRoutes(r fiber.Router) {
	owned := auth.RequireOwnership(t.gate, "ref", t.errorHandler)

	r.Get("/tasks", t.List).Name("tasks.list")
	r.Post("/tasks", t.Create).Name("tasks.create")
	r.Get("/tasks/:ref", owned, t.Get).Name("tasks.get")
	r.Patch("/tasks/:ref", owned, t.Update).Name("tasks.update")
	r.Delete("/tasks/:ref", owned, t.Delete).Name("tasks.delete")
}

type CreateRequest struct {
	Title string `json:"title"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
	)
}

type UpdateRequest struct {
	Done *bool `json:"done"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Done, validation.NotNil),
	)
}

func (t *Controller) List(c *fiber.Ctx) error {
	principal, err := auth.RequirePrincipal(c)
	if err != nil {
		return t.errorHandler(c, err)
	}
	out, err := t.repo.ListByOwner(c.UserContext(), principal.IdentityRef)
	if err != nil {
		return t.errorHandler(c, err)
	}
	if out == nil {
		out = []*Task{}
	}
	return c.JSON(out)
}

func (t *Controller) Create(c *fiber.Ctx) error {
	principal, err := auth.RequirePrincipal(c)
	if err != nil {
		return t.errorHandler(c, err)
	}

	payload := new(CreateRequest)
	if err := c.BodyParser(payload); err != nil {
		return t.errorHandler(c, auth.Derive(auth.ErrInvalidArguments, "", err))
	}
	if err := payload.Validate(); err != nil {
		return t.errorHandler(c, err)
	}

	task, err := t.repo.Create(c.UserContext(), principal.IdentityRef, payload.Title)
	if err != nil {
		return t.errorHandler(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

func (t *Controller) Get(c *fiber.Ctx) error {
	ref, err := auth.ParseIdentityRef(c.Params("ref"))
	if err != nil {
		return t.errorHandler(c, err)
	}
	task, err := t.repo.Get(c.UserContext(), ref)
	if err != nil {
		return t.errorHandler(c, err)
	}
	return c.JSON(task)
}

func (t *Controller) Update(c *fiber.Ctx) error {
	ref, err := auth.ParseIdentityRef(c.Params("ref"))
	if err != nil {
		return t.errorHandler(c, err)
	}

	payload := new(UpdateRequest)
	if err := c.BodyParser(payload); err != nil {
		return t.errorHandler(c, auth.Derive(auth.ErrInvalidArguments, "", err))
	}
	if err := payload.Validate(); err != nil {
		return t.errorHandler(c, err)
	}

	task, err := t.repo.SetDone(c.UserContext(), ref, *payload.Done)
	if err != nil {
		return t.errorHandler(c, err)
	}
	return c.JSON(task)
}

func (t *Controller) Delete(c *fiber.Ctx) error {
	ref, err := auth.ParseIdentityRef(c.Params("ref"))
	if err != nil {
		return t.errorHandler(c, err)
	}
	if err := t.repo.Delete(c.UserContext(), ref); err != nil {
		return t.errorHandler(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
