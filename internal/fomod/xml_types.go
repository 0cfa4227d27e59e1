package fomod

import "encoding/xml"

// Wire structures for ModuleConfig.xml. Converted to the public model after
// decoding; attribute casing follows the FOMOD schema.

type xmlConfig struct {
	XMLName                 xml.Name                    `xml:"config"`
	ModuleName              xmlModuleName               `xml:"moduleName"`
	RequiredInstallFiles    *xmlFileList                `xml:"requiredInstallFiles"`
	InstallSteps            *xmlInstallSteps            `xml:"installSteps"`
	ConditionalFileInstalls *xmlConditionalFileInstalls `xml:"conditionalFileInstalls"`
}

type xmlModuleName struct {
	Value string `xml:",chardata"`
}

type xmlInstallSteps struct {
	Order string           `xml:"order,attr"`
	Steps []xmlInstallStep `xml:"installStep"`
}

type xmlInstallStep struct {
	Name               string                 `xml:"name,attr"`
	OptionalFileGroups *xmlOptionalFileGroups `xml:"optionalFileGroups"`
}

type xmlOptionalFileGroups struct {
	Order  string     `xml:"order,attr"`
	Groups []xmlGroup `xml:"group"`
}

type xmlGroup struct {
	Name    string      `xml:"name,attr"`
	Type    string      `xml:"type,attr"`
	Plugins *xmlPlugins `xml:"plugins"`
}

type xmlPlugins struct {
	Order   string      `xml:"order,attr"`
	Plugins []xmlPlugin `xml:"plugin"`
}

type xmlPlugin struct {
	Name           string             `xml:"name,attr"`
	Description    string             `xml:"description"`
	Files          *xmlFileList       `xml:"files"`
	ConditionFlags *xmlConditionFlags `xml:"conditionFlags"`
}

type xmlConditionFlags struct {
	Flags []xmlSetConditionFlag `xml:"flag"`
}

type xmlSetConditionFlag struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlFileList struct {
	Files   []xmlFile   `xml:"file"`
	Folders []xmlFolder `xml:"folder"`
}

type xmlFile struct {
	Source      string `xml:"source,attr"`
	Destination string `xml:"destination,attr"`
	Priority    string `xml:"priority,attr"`
}

type xmlFolder struct {
	Source      string `xml:"source,attr"`
	Destination string `xml:"destination,attr"`
	Priority    string `xml:"priority,attr"`
}

type xmlCompositeDependency struct {
	Operator         string                   `xml:"operator,attr"`
	FileDependencies []xmlFileDependency      `xml:"fileDependency"`
	FlagDependencies []xmlFlagDependency      `xml:"flagDependency"`
	Dependencies     []xmlCompositeDependency `xml:"dependencies"`
}

type xmlFileDependency struct {
	File  string `xml:"file,attr"`
	State string `xml:"state,attr"`
}

type xmlFlagDependency struct {
	Flag  string `xml:"flag,attr"`
	Value string `xml:"value,attr"`
}

type xmlConditionalFileInstalls struct {
	Patterns []xmlConditionalPattern `xml:"patterns>pattern"`
}

type xmlConditionalPattern struct {
	Dependencies *xmlCompositeDependency `xml:"dependencies"`
	Files        *xmlFileList            `xml:"files"`
}
