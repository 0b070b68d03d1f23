// Package domain define contratos e tipos de domínio para o rate limit distribuído.
//
// Este pacote não depende de net/http, Redis nem de implementações concretas.
// LimitClass e Registry são imutáveis depois de construídos; o estado das janelas
// vive no Store (ver pacote infra).
package domain
