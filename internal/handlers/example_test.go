package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/Totarae/firefly/internal/auth"
	"github.com/Totarae/firefly/internal/database"
	"github.com/Totarae/firefly/internal/handlers"
	"github.com/Totarae/firefly/internal/repositories"
	"github.com/Totarae/firefly/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func ExampleHandler_ReceiveShorten() {
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, database.MemoryPath)
	if err != nil {
		fmt.Println(err)
		return
	}
	repo := repositories.NewSQLiteRepository(db, zap.NewNop())
	defer repo.Close()
	if err := repo.EnsureCodeFactory(ctx); err != nil {
		fmt.Println(err)
		return
	}

	authenticator, _ := auth.NewAPIKeyAuthenticator("key")
	svc := service.NewShortenerService(repo, zap.NewNop(), 25, 1000)
	h := handlers.NewHandler(svc, auth.New("secret", time.Hour), authenticator, zap.NewNop(), "http://localhost:8080")

	r := chi.NewRouter()
	r.Post("/api/shorten", h.ReceiveShorten)

	req := httptest.NewRequest(http.MethodPost, "/api/shorten", strings.NewReader(`{"url":"https://go.dev","code":"go"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	fmt.Println(rec.Code)
	fmt.Println(strings.Contains(rec.Body.String(), `"result":"http://localhost:8080/go"`))
	// Output:
	// 201
	// true
}
