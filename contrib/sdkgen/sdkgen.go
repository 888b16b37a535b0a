// Package sdkgen renders a set of serialized clients into a single Go
// source file, the distributable SDK of an API: one constructor per
// entity, no hand-written code on the consumer side.
package sdkgen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"

	"github.com/VR-web-shop/METEOR/client"
)

const clientPkg = "github.com/VR-web-shop/METEOR/client"

// Generate builds the SDK file for the given clients in package pkg.
// Every client becomes one constructor named after the singular,
// camelized form of its route path ("texture-types" yields
// NewTextureTypeClient).
func Generate(pkg string, clients []client.Serialized) *jen.File {
	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by meteor. DO NOT EDIT.")
	f.ImportName(clientPkg, "client")

	for _, c := range clients {
		name := entityName(c.Path)
		f.Commentf("New%sClient builds the %s client of the API at %s.", name, c.Path, c.ServerURL)
		f.Func().Id("New" + name + "Client").Params().
			Params(jen.Op("*").Qual(clientPkg, "OperationSet"), jen.Error()).
			Block(
				jen.Return(jen.Qual(clientPkg, "FromSerialized").Call(serializedValue(c))),
			)
	}

	f.Comment("Clients lists every serialized client of the SDK.")
	f.Func().Id("Clients").Params().Index().Qual(clientPkg, "Serialized").Block(
		jen.Return(jen.Index().Qual(clientPkg, "Serialized").ValuesFunc(func(g *jen.Group) {
			for _, c := range clients {
				g.Add(serializedValue(c))
			}
		})),
	)
	return f
}

// Render renders the SDK file to formatted Go source.
func Render(pkg string, clients []client.Serialized) ([]byte, error) {
	var buf bytes.Buffer
	if err := Generate(pkg, clients).Render(&buf); err != nil {
		return nil, fmt.Errorf("sdkgen: render: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the SDK file to path.
func Write(path, pkg string, clients []client.Serialized) error {
	if err := Generate(pkg, clients).Save(path); err != nil {
		return fmt.Errorf("sdkgen: write %s: %w", path, err)
	}
	return nil
}

// entityName derives the constructor name from a route path.
func entityName(path string) string {
	p := strings.ReplaceAll(strings.Trim(path, "/"), "-", "_")
	return inflect.Camelize(inflect.Singularize(p))
}

func serializedValue(c client.Serialized) jen.Code {
	d := jen.Dict{
		jen.Id("ServerURL"): jen.Lit(c.ServerURL),
		jen.Id("Path"):      jen.Lit(c.Path),
		jen.Id("KeyField"):  jen.Lit(c.KeyField),
		jen.Id("Options"):   optionsValue(c.Options),
	}
	if c.TokenName != "" {
		d[jen.Id("TokenName")] = jen.Lit(c.TokenName)
	}
	return jen.Qual(clientPkg, "Serialized").Values(d)
}

func optionsValue(o client.Options) jen.Code {
	d := jen.Dict{}
	if o.Find != nil {
		d[jen.Id("Find")] = jen.Op("&").Qual(clientPkg, "FindOptions").Values(authDict(o.Find.Auth))
	}
	if o.FindAll != nil {
		fa := authDict(o.FindAll.Auth)
		if o.FindAll.DefaultLimit != 0 {
			fa[jen.Id("DefaultLimit")] = jen.Lit(o.FindAll.DefaultLimit)
		}
		if o.FindAll.DefaultPage != 0 {
			fa[jen.Id("DefaultPage")] = jen.Lit(o.FindAll.DefaultPage)
		}
		d[jen.Id("FindAll")] = jen.Op("&").Qual(clientPkg, "FindAllOptions").Values(fa)
	}
	if o.Create != nil {
		d[jen.Id("Create")] = jen.Op("&").Qual(clientPkg, "CreateOptions").Values(authDict(o.Create.Auth))
	}
	if o.Update != nil {
		d[jen.Id("Update")] = jen.Op("&").Qual(clientPkg, "UpdateOptions").Values(authDict(o.Update.Auth))
	}
	if o.Delete != nil {
		d[jen.Id("Delete")] = jen.Op("&").Qual(clientPkg, "DeleteOptions").Values(authDict(o.Delete.Auth))
	}
	if o.Debug {
		d[jen.Id("Debug")] = jen.Lit(true)
	}
	return jen.Qual(clientPkg, "Options").Values(d)
}

func authDict(auth bool) jen.Dict {
	d := jen.Dict{}
	if auth {
		d[jen.Id("Auth")] = jen.Lit(true)
	}
	return d
}
