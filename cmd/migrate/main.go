package main

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq"

	"github.com/querypad/querypad-backend/config"
)

var statements = []string{
	`create extension if not exists pgcrypto`,

	`create table if not exists users (
		id uuid primary key default gen_random_uuid(),
		auth_uid text not null unique,
		email text,
		display_name text,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,

	`create table if not exists data_sources (
		id bigserial primary key,
		name text not null,
		type text not null,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,

	`create table if not exists query_results (
		id bigserial primary key,
		query_hash text not null,
		query text not null,
		data jsonb not null,
		runtime double precision not null default 0,
		data_source_id bigint references data_sources(id),
		retrieved_at timestamptz not null default now()
	)`,

	`create index if not exists idx_query_results_lookup
		on query_results (query_hash, data_source_id, retrieved_at desc)`,

	`create table if not exists queries (
		id bigserial primary key,
		version integer not null default 1,
		name text not null,
		description text,
		query text not null,
		query_hash text not null,
		api_key text not null,
		user_id text not null,
		last_modified_by_id text,
		is_archived boolean not null default false,
		is_draft boolean not null default true,
		schedule text,
		options jsonb,
		data_source_id bigint references data_sources(id),
		latest_query_result_id bigint references query_results(id),
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,

	`create index if not exists idx_queries_user on queries (user_id)`,

	`create index if not exists idx_queries_schedule
		on queries (schedule) where schedule is not null`,

	`create table if not exists visualizations (
		id bigserial primary key,
		query_id bigint not null references queries(id) on delete cascade,
		type text not null,
		name text not null,
		description text,
		options jsonb,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,

	`create table if not exists changes (
		id bigserial primary key,
		object_type text not null,
		object_id bigint not null,
		object_version integer not null,
		user_id text not null,
		change jsonb not null,
		created_at timestamptz not null default now()
	)`,

	`create index if not exists idx_changes_object
		on changes (object_type, object_id, created_at desc)`,

	`create table if not exists events (
		id uuid primary key,
		user_id text not null,
		action text not null,
		object_type text not null,
		object_id text not null,
		additional_properties jsonb,
		created_at timestamptz not null default now()
	)`,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("statement %d: %v", i+1, err)
		}
	}

	log.Printf("migration complete, %d statements applied", len(statements))
}
