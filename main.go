package main

import "certichain/internal/app"

// @title           CertiChain Auth API
// @version         1.0
// @description     Authentication and credential-lifecycle service for blockchain-anchored academic certificates.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
