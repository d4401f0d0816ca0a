//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package quality

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	defaultMongoDatabase   = "weatheretl"
	defaultMongoCollection = "dq_results"
	mongoPingTimeout       = 10 * time.Second
)

// mongoInserter is the part of *mongo.Collection the publisher needs.
type mongoInserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoPublisher stores each result as one document.
type MongoPublisher struct {
	client     *mongo.Client
	collection mongoInserter
}

// NewMongoPublisher connects to uri and writes to the dq_results collection
// of the database named in the URI path (default weatheretl).
func NewMongoPublisher(ctx context.Context, uri string) (*MongoPublisher, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("mongo publisher: %w", err)
	}
	database := cs.Database
	if database == "" {
		database = defaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo publisher: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo publisher: ping: %w", err)
	}

	return &MongoPublisher{
		client:     client,
		collection: client.Database(database).Collection(defaultMongoCollection),
	}, nil
}

// NewMongoCollectionPublisher writes to an existing collection. Close does
// not disconnect its client.
func NewMongoCollectionPublisher(coll *mongo.Collection) *MongoPublisher {
	return &MongoPublisher{collection: coll}
}

func (m *MongoPublisher) Publish(ctx context.Context, result *Result) error {
	if _, err := m.collection.InsertOne(ctx, result); err != nil {
		return fmt.Errorf("mongo publisher: insert: %w", err)
	}
	return nil
}

func (m *MongoPublisher) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(context.Background())
}
