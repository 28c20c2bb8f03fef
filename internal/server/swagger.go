package server

//go:generate swag init -g internal/server/swagger.go -o docs/swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/raysh454/a11yscan/docs/swagger"
)

// @title a11yscan API
// @version 0.1
// @description Accessibility report jobs with a tiered result cache. GraphQL lives at POST /graphql.
// @contact.name a11yscan Maintainers
// @contact.url https://github.com/raysh454/a11yscan
// @BasePath /

// swaggerHandler serves the Swagger UI and doc.json under /swagger/.
func swaggerHandler() http.HandlerFunc {
	return httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json"))
}
