// Package main divide API
//
//	@title			divide API
//	@version		1.0
//	@description	Ephemeral multi-user rooms with label-driven two-team partitioning
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT token (format: Bearer <token>)
package main
