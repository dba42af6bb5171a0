// Package sessionauth provides session cookie authentication for Go web backends.
//
// It covers email/password registration and login, GitHub and Google OAuth2
// login, email verification, password reset and profile management on top of
// a relational store, a Redis backed email queue and an optional response cache.
//
// # Architecture
//
// Store: persistence only. Users, federated accounts, sessions and single use
// tokens live behind the Store interface; stores/gorm implements it for MySQL
// and SQLite. Unique keys are the concurrency control and surface as
// ErrConstraintViolation.
//
// SessionManager: issues, validates, rotates and invalidates sessions. A
// session is active for SessionConfig.ActivePeriod and, once that passes, may
// still be used for IdlePeriod, in which case it is rotated to a new id.
// After both it is dead and deleted on sight.
//
// TokenIssuer: email verification codes (8 characters, 3 hours) and password
// reset tokens (stored as SHA-256 hashes, 2 hours). Issuing replaces any
// outstanding token of the same kind; consuming one invalidates all of the
// user's sessions and returns a fresh one.
//
// OAuthFlow: runs the oauth2 providers and links the returned identity to a
// local user, provisioning one on first login.
//
// # Basic Usage
//
//	db, _ := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	store := gormstore.NewStore(db)
//
//	jobs := queue.NewClient(redisAddr, redisPassword)
//	app := sessionauth.NewApp(store, jobs, sessionauth.DefaultSessionConfig(), logger,
//	    oauth2.NewGithubOAuth2(githubID, githubSecret, githubCallback),
//	    oauth2.NewGoogleOAuth2(googleID, googleSecret, googleCallback))
//
//	go queue.NewWorker(jobs, mail.Processors(sender), logger).Run(ctx)
//	http.ListenAndServe(":8080", app.Handler())
//
// # Routes
//
//	POST   /auth/signup
//	POST   /auth/login
//	GET    /auth/logout
//	POST   /auth/verify-email?code=
//	POST   /auth/resend-verification     (logged in)
//	POST   /auth/reset-password
//	POST   /auth/reset-password/{token}
//	GET    /auth/login/{provider}
//	GET    /auth/login/{provider}/callback
//	GET    /users?limit=&offset=
//	GET    /users/{id}
//	PATCH  /users/{id}                   (owner or admin)
//	DELETE /users/{id}                   (owner or admin)
//
// Handlers answer with JSON bodies of the form {"message": "..."}.
package sessionauth
