// Package gearjob provides a gRPC job server, its clients and its workers.
//
// Clients submit tasks to the server, which queues them per function name
// and hands them to workers that grabbed that function. Workers report
// status, data, complete and fail updates, which the server relays to every
// client watching the job.
//
// ## Client
//
// The [Client] created with [NewClient] submits jobs, queries their status
// and watches their updates. [Client.RunSet] runs a whole [task.Set]: it
// submits the tasks, correlates updates to tasks by handle and runs their
// callbacks.
//
// ## Worker
//
// The [Worker] created with [NewWorker] grabs jobs through a Client and
// runs them with handlers created by a [job.Dispatcher]. Jobs still running
// when the worker stops are requeued on the server.
//
// ## Server
//
// The [Server] created with [NewServer] wraps the gRPC server and the
// underlying [queue.Queue].
//
// ## Security
//
// With [TLSFiles] set, the server and its clients use mTLS with TLS version
// 1.3 and the server tags every call with the Common Name of the client
// certificate. Without them both sides use plaintext.
//
// ## Service
//
// The [Service] implements the JobServer gRPC service on a [queue.Queue].
// It is a lower integration point than the [Server] type for custom
// security setup or testing.
//
// # Example Usage
//
// Server:
//
//	server, err := NewServer(TLSFiles{Cert: "server.crt", Key: "server.key", CA: "client-ca.crt"})
//	if err != nil {
//		// handle error
//	}
//	server.StopOnSignals(os.Interrupt)
//	lis, err := net.Listen("tcp", "localhost:4730")
//	if err != nil {
//		// handle error
//	}
//	if err := server.Serve(lis); err != nil {
//		// handle error
//	}
//
// Client:
//
//	client, err := NewClient("localhost:4730", TLSFiles{Cert: "client.crt", Key: "client.key", CA: "server-ca.crt"})
//	if err != nil {
//		// handle error
//	}
//	defer client.Close()
//
//	t := task.NewTask("Reverse", []byte("hello"))
//	if err := client.RunSet(ctx, task.NewSet(t)); err != nil {
//		// handle error
//	}
//	fmt.Println(string(t.Result()))
package gearjob
