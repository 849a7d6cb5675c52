// Command vidorder runs the VidOrder API and its operational tasks.
//
//	vidorder serve            # HTTP API (plus in-process workers for the memory queue)
//	vidorder migrate          # apply SQL migrations
//	vidorder migrate:rollback
//	vidorder migrate:status
//	vidorder seed             # create the admin account from ADMIN_*
//	vidorder route:list       # list API routes
//	vidorder queue:work       # process mail jobs from Redis
//	vidorder schedule:run     # periodic payment reconciliation
//	vidorder reconcile        # one reconciliation sweep, then exit
//
// Configuration comes from config/app.json, .env and the environment, in
// increasing order of precedence.
package main
