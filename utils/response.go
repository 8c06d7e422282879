package utils

import (
	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
)

type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

func JSONPage(ctx iris.Context, data interface{}, page, perPage int, total int64) {
	ctx.JSON(iris.Map{
		"data":  data,
		"meta":  PageMeta{Page: page, PerPage: perPage, Total: total},
		"links": iris.Map{},
	})
}

func JSONError(ctx iris.Context, status int, code, message string) {
	ctx.StatusCode(status)
	ctx.JSON(iris.Map{"error": code, "message": message})
}

func CreateError(statusCode int, title string, detail string, ctx iris.Context) {
	ctx.StatusCode(statusCode)
	ctx.JSON(iris.Map{"title": title, "detail": detail})
}

func CreateNotFound(ctx iris.Context) {
	CreateError(iris.StatusNotFound, "Not Found", "Resource not found", ctx)
}

func CreateInternalServerError(ctx iris.Context) {
	CreateError(iris.StatusInternalServerError, "Internal Server Error", "An internal server error occurred", ctx)
}

type validationError struct {
	ActualTag string `json:"tag"`
	Namespace string `json:"namespace"`
	Kind      string `json:"kind"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Param     string `json:"param"`
}

// HandleValidationErrors writes a 400 with per-field details when err comes
// from the request validator, and a 500 otherwise.
func HandleValidationErrors(err error, ctx iris.Context) {
	if errs, ok := err.(validator.ValidationErrors); ok {
		validationErrors := make([]validationError, 0, len(errs))
		for _, validationErr := range errs {
			validationErrors = append(validationErrors, validationError{
				ActualTag: validationErr.ActualTag(),
				Namespace: validationErr.Namespace(),
				Kind:      validationErr.Kind().String(),
				Type:      validationErr.Type().String(),
				Value:     validationErr.Param(),
				Param:     validationErr.Param(),
			})
		}

		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"title": "Validation Error", "validationErrors": validationErrors})
		return
	}

	CreateInternalServerError(ctx)
}
