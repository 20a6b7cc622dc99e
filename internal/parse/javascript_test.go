package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseJS(t *testing.T, source string) *Tree {
	t.Helper()
	p := &JavaScriptParser{}
	tree, err := p.Parse(context.Background(), []byte(source), "src/app.js")
	require.NoError(t, err)
	require.NotNil(t, tree)
	return tree
}

// =============================================================================
// Declarations
// =============================================================================

func TestJavaScript_FunctionsAndArrows(t *testing.T) {
	t.Parallel()
	tree := parseJS(t, `
function login(username, password) {
  return validateUser(username, password);
}

async function refresh(token) {
  return await fetchToken(token);
}

const logout = (session) => {
  session.destroy();
};
`)
	require.Len(t, tree.Functions, 3)

	login := tree.Functions[0]
	assert.Equal(t, "login", login.Name)
	assert.Equal(t, "function login(username, password)", login.Signature)
	assert.Equal(t, []string{"validateUser"}, callNames(login.Calls))

	refresh := tree.Functions[1]
	assert.True(t, refresh.Async)
	assert.Equal(t, "async function refresh(token)", refresh.Signature)

	logout := tree.Functions[2]
	assert.Equal(t, "logout", logout.Name)
	assert.Equal(t, "const logout = (session) => {}", logout.Signature)
	require.Len(t, logout.Calls, 1)
	assert.Equal(t, Call{Name: "destroy", Receiver: "session", Line: 11}, logout.Calls[0])
}

func TestJavaScript_ClassWithExtends(t *testing.T) {
	t.Parallel()
	tree := parseJS(t, `
/** Handles user sessions. */
class SessionManager extends BaseManager {
  constructor(store) {
    super(store);
    this.store = store;
  }

  async load(id) {
    return this.store.get(id);
  }

  static create() {
    return new SessionManager(defaultStore());
  }
}
`)
	require.Len(t, tree.Classes, 1)
	cls := tree.Classes[0]
	assert.Equal(t, "SessionManager", cls.Name)
	assert.Equal(t, []string{"BaseManager"}, cls.Bases)
	assert.Equal(t, "Handles user sessions.", cls.Doc)
	require.Len(t, cls.Methods, 3)

	assert.Equal(t, "constructor", cls.Methods[0].Name)
	load := cls.Methods[1]
	assert.Equal(t, "load", load.Name)
	assert.True(t, load.Async)
	assert.Equal(t, "async load(id)", load.Signature)
	require.Len(t, load.Calls, 1)
	assert.Equal(t, "get", load.Calls[0].Name)
	assert.Equal(t, "this.store", load.Calls[0].Receiver)

	create := cls.Methods[2]
	assert.Equal(t, "static create()", create.Signature)
	assert.Equal(t, []string{"defaultStore"}, callNames(create.Calls))
}

func TestJavaScript_ExportedDeclarations(t *testing.T) {
	t.Parallel()
	tree := parseJS(t, `
export function handler(req, res) {
  res.send(ok());
}

export default class App {
  start() {}
}
`)
	require.Len(t, tree.Functions, 1)
	assert.Equal(t, "handler", tree.Functions[0].Name)
	require.Len(t, tree.Classes, 1)
	assert.Equal(t, "App", tree.Classes[0].Name)
}

// =============================================================================
// Imports
// =============================================================================

func TestJavaScript_Imports(t *testing.T) {
	t.Parallel()
	tree := parseJS(t, `
import express from 'express';
import * as path from 'path';
import { login, logout as signOut } from './auth';
import './side-effects';
const db = require('./db');
`)
	require.Len(t, tree.Imports, 6)

	assert.Equal(t, Import{Module: "express", Alias: "express", Line: 2}, tree.Imports[0])
	assert.Equal(t, Import{Module: "path", Name: "*", Alias: "path", Line: 3}, tree.Imports[1])
	assert.Equal(t, Import{Module: "./auth", Name: "login", Line: 4}, tree.Imports[2])
	assert.Equal(t, Import{Module: "./auth", Name: "logout", Alias: "signOut", Line: 4}, tree.Imports[3])
	assert.Equal(t, Import{Module: "./side-effects", Line: 5}, tree.Imports[4])
	assert.Equal(t, Import{Module: "./db", Alias: "db", Line: 6}, tree.Imports[5])
}

func TestJavaScript_RequireNotACall(t *testing.T) {
	t.Parallel()
	tree := parseJS(t, `
function setup() {
  const fs = require('fs');
  configure(fs);
}
`)
	require.Len(t, tree.Functions, 1)
	// require() itself is an import mechanism, not a call reference.
	assert.Equal(t, []string{"configure"}, callNames(tree.Functions[0].Calls))
}

func TestJavaScript_SyntaxErrorReported(t *testing.T) {
	t.Parallel()
	p := &JavaScriptParser{}
	_, err := p.Parse(context.Background(), []byte("function broken( {\n"), "broken.js")
	require.Error(t, err)

	var serr *SyntaxError
	assert.ErrorAs(t, err, &serr)
}
