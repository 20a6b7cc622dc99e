package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTS(t *testing.T, path, source string) *Tree {
	t.Helper()
	p := &TypeScriptParser{}
	tree, err := p.Parse(context.Background(), []byte(source), path)
	require.NoError(t, err)
	require.NotNil(t, tree)
	return tree
}

func TestTypeScript_ClassImplementsAndExtends(t *testing.T) {
	t.Parallel()
	tree := parseTS(t, "src/service.ts", `
interface Repository {
  find(id: number): User;
}

abstract class BaseService {
  abstract run(): void;
}

export class UserService extends BaseService implements Repository {
  find(id: number): User {
    return lookup(id);
  }
}
`)
	require.Len(t, tree.Classes, 3)

	repo := tree.Classes[0]
	assert.Equal(t, "Repository", repo.Name)
	require.Len(t, repo.Methods, 1)
	assert.Equal(t, "find", repo.Methods[0].Name)
	assert.Equal(t, "find(id: number): User", repo.Methods[0].Signature)

	base := tree.Classes[1]
	assert.Equal(t, "BaseService", base.Name)

	svc := tree.Classes[2]
	assert.Equal(t, "UserService", svc.Name)
	assert.Equal(t, []string{"BaseService", "Repository"}, svc.Bases)
	require.Len(t, svc.Methods, 1)
	assert.Equal(t, []string{"lookup"}, callNames(svc.Methods[0].Calls))
}

func TestTypeScript_InterfaceExtends(t *testing.T) {
	t.Parallel()
	tree := parseTS(t, "src/types.ts", `
interface Audited extends Base {
  auditLog(): void;
}
`)
	require.Len(t, tree.Classes, 1)
	assert.Equal(t, []string{"Base"}, tree.Classes[0].Bases)
}

func TestTypeScript_TypedFunctions(t *testing.T) {
	t.Parallel()
	tree := parseTS(t, "src/auth.ts", `
import { hash } from './crypto';

export function login(username: string, password: string): Session {
  return createSession(hash(password));
}
`)
	require.Len(t, tree.Imports, 1)
	assert.Equal(t, Import{Module: "./crypto", Name: "hash", Line: 2}, tree.Imports[0])

	require.Len(t, tree.Functions, 1)
	fn := tree.Functions[0]
	assert.Equal(t, "login", fn.Name)
	assert.Equal(t, "function login(username: string, password: string): Session", fn.Signature)
	assert.ElementsMatch(t, []string{"createSession", "hash"}, callNames(fn.Calls))
}

func TestTypeScript_TSXParsed(t *testing.T) {
	t.Parallel()
	tree := parseTS(t, "src/App.tsx", `
import React from 'react';

export function App() {
  return render();
}
`)
	require.Len(t, tree.Functions, 1)
	assert.Equal(t, "App", tree.Functions[0].Name)
	assert.Equal(t, []string{"render"}, callNames(tree.Functions[0].Calls))
}

func TestTypeScript_GenericBaseKeepsBareName(t *testing.T) {
	t.Parallel()
	tree := parseTS(t, "src/store.ts", `
class UserStore extends Collection<User> {
}
`)
	require.Len(t, tree.Classes, 1)
	assert.Equal(t, []string{"Collection"}, tree.Classes[0].Bases)
}
