// Upstream de teste para validar o gateway manualmente:
//
//	UPSTREAM_URL=http://localhost:8081 go run ./cmd/gateway
//	for i in $(seq 1 10); do curl -si localhost:8080/showTela | head -1; done
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"security-gateway/logging"

	"github.com/go-chi/chi/v5"
)

func main() {
	log := logging.New(logging.Config{Service: "servidor-burrao", Sinks: []logging.Sink{logging.NewConsoleSink(os.Stdout)}})
	defer func() { _ = log.Close(context.Background()) }()

	r := chi.NewRouter()
	r.Get("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>")
		log.Info("showTela acessado", logging.Fields{
			"requestId": r.Header.Get("X-Request-ID"),
			"remote":    r.RemoteAddr,
		})
		_ = log.Flush(r.Context())
	})

	fmt.Println("Servidor rodando em http://localhost:8081")
	if err := http.ListenAndServe(":8081", r); err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
