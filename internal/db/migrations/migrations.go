// Package migrations contiene las migraciones SQL embebidas del servicio.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
