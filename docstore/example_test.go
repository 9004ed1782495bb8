// Copyright 2019 The Go Cloud Development Kit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package docstore_test

import (
	"context"
	"fmt"
	"log"

	"firerest.dev/docstore"
	"firerest.dev/docstore/memdocstore"
	"firerest.dev/gcerrors"
)

func ExampleDatabase_RunTransaction() {
	ctx := context.Background()
	db, err := memdocstore.OpenDatabase("myproject", "", nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ref := db.Ref("players/pat")
	if err := ref.Create(ctx, map[string]interface{}{"score": 10}); err != nil {
		log.Fatal(err)
	}
	err = db.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		docs, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		score := docs[0].Data()["score"].(int64)
		return tx.Update(ref, map[string]interface{}{"score": score * 2}, nil)
	}, nil)
	if err != nil {
		log.Fatal(err)
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(doc.Data()["score"])

	// Output:
	// 20
}

func ExampleQuery_Run() {
	ctx := context.Background()
	db, err := memdocstore.OpenDatabase("myproject", "", nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	players := db.Ref("players")
	for name, score := range map[string]int{"pat": 88, "mel": 51, "fran": 73} {
		if err := players.Child(name).Create(ctx, map[string]interface{}{"score": score}); err != nil {
			log.Fatal(err)
		}
	}
	docs, err := players.Query().
		Where(docstore.Filter{Path: "score", Op: ">", Value: 60}).
		OrderBy(docstore.Order{Path: "score", Direction: "desc"}).
		Run(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, d := range docs {
		fmt.Println(d.ID(), d.Data()["score"])
	}

	// Output:
	// pat 88
	// fran 73
}

func ExampleReference_Update() {
	ctx := context.Background()
	db, err := memdocstore.OpenDatabase("myproject", "", nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ref := db.Ref("players/pat")
	err = ref.Update(ctx, map[string]interface{}{"score": docstore.Increment(5)}, nil)
	fmt.Println(gcerrors.Code(err))

	if err := ref.Set(ctx, map[string]interface{}{"score": 1}, nil); err != nil {
		log.Fatal(err)
	}
	err = ref.Update(ctx, map[string]interface{}{
		"score":   docstore.Increment(5),
		"updated": docstore.ServerTimestamp(),
	}, nil)
	if err != nil {
		log.Fatal(err)
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		log.Fatal(err)
	}
	_, hasTime := doc.Data()["updated"]
	fmt.Println(doc.Data()["score"], hasTime)

	// Output:
	// NotFound
	// 6 true
}

func ExampleOpenDatabase() {
	ctx := context.Background()

	// OpenDatabase creates a *docstore.Database from a URL. The "mem" scheme
	// is registered by the memdocstore package.
	db, err := docstore.OpenDatabase(ctx, "mem://myproject")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	fmt.Println(db.Name())

	// Output:
	// projects/myproject/databases/(default)
}
