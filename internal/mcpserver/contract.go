package mcpserver

// PromptFormatContract describes the component prompt format that LLM
// clients should produce before calling compile_prompt.
const PromptFormatContract = `# Stencil Prompt Format

A prompt is Markdown (or a JSON object with the same fields) describing one
UI component. Stencil turns it into a template package: component source,
demo, helper files, styles, assets, a JSON schema with defaults, a preview
page and a manifest.

## Structure

` + "```" + `markdown
---
name: Pricing Table            # OPTIONAL, defaults to the first "# " heading
slug: pricing-table            # OPTIONAL, derived from the name
description: Three-tier plans  # OPTIONAL
---

# Pricing Table

## Component
` + "```" + `tsx filename=pricing-table.tsx export=PricingTable
export function PricingTable(props) { ... }
` + "```" + `

## Demo
` + "```" + `tsx
export default () => <PricingTable />
` + "```" + `

## Dependencies
` + "```" + `ts filename=lib/cn.ts
export const cn = (...c: string[]) => c.filter(Boolean).join(" ")
` + "```" + `

## Styles
` + "```" + `css filename=pricing.css
.pricing { display: grid; }
` + "```" + `

## Assets
` + "```" + `txt filename=logo.png encoding=base64 type=image/png
iVBORw0KGgo...
` + "```" + `

## NPM Packages
- react: ^18.2.0
- clsx@2.1.0

## Notes
- @field title: string = Choose a plan
- @field highlighted: number = 1
` + "```" + `

## Rules

1. **Component is required.** The first code fence under the Component
   heading is the component source. Everything else is optional and only
   produces a warning when missing.
2. **Headings are matched loosely.** "Demo", "Usage", "Example", "示例" all
   select the demo section; full-width characters and punctuation are
   ignored.
3. **Fence attributes** follow the language tag: ` + "`filename=`" + `,
   ` + "`export=`" + `, ` + "`encoding=base64`" + `, ` + "`type=`" + `. Quote values
   that contain spaces.
4. **File names** must be relative. Absolute paths and ` + "`..`" + ` segments
   are rejected and abort the build.
5. **NPM lines** accept ` + "`name: version`" + `, ` + "`name@version`" + ` or a bare name.
6. **Schema fields** are declared in Notes as
   ` + "`@field <name>: <type> = <default>`" + ` where type is string, number,
   boolean or array. Unknown types fall back to string; a number default
   that does not parse becomes null with a warning.
7. **Every fence must be closed.** An unterminated fence is a hard error.
`
