// meteor serves a declared entity API from a YAML file, or emits the
// matching Go SDK.
//
// Serve an API over an in-memory store:
//
//	meteor -config meteor.yaml -store memory
//
// Serve it over a database:
//
//	meteor -config meteor.yaml -store postgres -dsn postgres://...
//
// Emit the SDK file instead of serving:
//
//	meteor -config meteor.yaml -sdk ./sdk/sdk.go -sdk-pkg shopsdk
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/config"
	"github.com/VR-web-shop/METEOR/contrib/sdkgen"
	"github.com/VR-web-shop/METEOR/memstore"
	"github.com/VR-web-shop/METEOR/sqlstore"
	"github.com/VR-web-shop/METEOR/storage"
)

func main() {
	var (
		configPath = flag.String("config", "meteor.yaml", "entity configuration file")
		addr       = flag.String("addr", ":8080", "listen address")
		store      = flag.String("store", "memory", "backing store: memory, mysql, postgres or sqlite")
		dsn        = flag.String("dsn", "", "database source name (SQL stores)")
		sdkPath    = flag.String("sdk", "", "emit the SDK file to this path instead of serving")
		sdkPkg     = flag.String("sdk-pkg", "sdk", "package name of the emitted SDK file")
		uploads    = flag.String("uploads", "", "directory backing declared upload fields")
		watch      = flag.Bool("watch", false, "log configuration changes while serving")
	)
	flag.Parse()

	f, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	if *sdkPath != "" {
		clients, err := f.BuildClients()
		if err != nil {
			fatal(err)
		}
		if err := sdkgen.Write(*sdkPath, *sdkPkg, clients); err != nil {
			fatal(err)
		}
		log.Printf("meteor: wrote %d clients to %s", len(clients), *sdkPath)
		return
	}

	models, closeStore, err := buildModels(f, *store, *dsn)
	if err != nil {
		fatal(err)
	}
	defer closeStore()

	var uploadStore storage.Service
	if *uploads != "" {
		uploadStore = storage.NewDisk(*uploads, "/uploads")
	}
	sets, err := f.BuildOperations(models, uploadStore)
	if err != nil {
		fatal(err)
	}

	mux := http.NewServeMux()
	for i := range f.Entities {
		e := &f.Entities[i]
		mountEntity(mux, e.Path, e.KeyField, sets[e.Name])
		log.Printf("meteor: mounted %s at /%s", e.Name, e.Path)
	}

	if *watch {
		err := config.Watch(context.Background(), *configPath, func(_ *config.File, err error) {
			if err != nil {
				log.Printf("meteor: config change: %v", err)
				return
			}
			log.Printf("meteor: %s changed, restart to apply", *configPath)
		})
		if err != nil {
			fatal(err)
		}
	}

	log.Printf("meteor: listening on %s", *addr)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		fatal(err)
	}
}

// buildModels binds every declared entity to a store and wires the
// declared associations between them.
func buildModels(f *config.File, store, dsn string) (map[string]meteor.Model, func() error, error) {
	noop := func() error { return nil }
	switch store {
	case "memory":
		stores := make(map[string]*memstore.Store, len(f.Entities))
		for i := range f.Entities {
			e := &f.Entities[i]
			stores[e.Name] = memstore.New(e.Name, e.KeyField)
		}
		for i := range f.Entities {
			e := &f.Entities[i]
			for _, a := range e.Associations {
				if err := stores[e.Name].Relate(a.Alias, stores[a.Target], a.LocalKey, a.ForeignKey, a.Many); err != nil {
					return nil, noop, err
				}
			}
		}
		return asModels(stores), noop, nil
	case sqlstore.MySQL, sqlstore.Postgres, sqlstore.SQLite:
		if dsn == "" {
			return nil, noop, fmt.Errorf("meteor: -dsn is required for store %q", store)
		}
		db, err := sql.Open(store, dsn)
		if err != nil {
			return nil, noop, err
		}
		stores := make(map[string]*sqlstore.Store, len(f.Entities))
		for i := range f.Entities {
			e := &f.Entities[i]
			s, err := sqlstore.New(db, store, e.Name, e.Table, e.KeyField)
			if err != nil {
				db.Close()
				return nil, noop, err
			}
			stores[e.Name] = s
		}
		for i := range f.Entities {
			e := &f.Entities[i]
			for _, a := range e.Associations {
				if err := stores[e.Name].Relate(a.Alias, stores[a.Target], a.LocalKey, a.ForeignKey, a.Many); err != nil {
					db.Close()
					return nil, noop, err
				}
			}
		}
		return asModels(stores), db.Close, nil
	default:
		return nil, noop, fmt.Errorf("meteor: unsupported store %q", store)
	}
}

func asModels[S meteor.Model](stores map[string]S) map[string]meteor.Model {
	models := make(map[string]meteor.Model, len(stores))
	for name, s := range stores {
		models[name] = s
	}
	return models
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "meteor: %v\n", err)
	os.Exit(1)
}
